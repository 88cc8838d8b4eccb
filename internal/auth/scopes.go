package auth

// Scopes checked by the habits API.
const (
	ScopeHabitsWrite = "habits:write"
	ScopeHabitsRead  = "habits:read"
)
