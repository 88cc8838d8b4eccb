package outbox

const habitChangedSchema = `{
  "type": "object",
  "title": "HabitChanged",
  "properties": {
    "habit_id": {"type": "string"},
    "user_id": {"type": "string"},
    "name": {"type": "string"},
    "streak": {"type": "integer", "minimum": 0},
    "status": {"type": "string", "enum": ["not_activated", "in_progress", "activated"]},
    "op": {"type": "string", "enum": ["created", "updated", "deleted"]},
    "occurred_at": {"type": "string", "format": "date-time"}
  },
  "required": ["habit_id", "user_id", "name", "streak", "status", "op", "occurred_at"],
  "additionalProperties": false
}`

const profileChangedSchema = `{
  "type": "object",
  "title": "ProfileChanged",
  "properties": {
    "user_id": {"type": "string"},
    "level": {"type": "integer", "minimum": 1},
    "xp": {"type": "integer", "minimum": 0},
    "op": {"type": "string", "enum": ["created", "updated", "deleted"]},
    "occurred_at": {"type": "string", "format": "date-time"}
  },
  "required": ["user_id", "level", "xp", "op", "occurred_at"],
  "additionalProperties": false
}`
