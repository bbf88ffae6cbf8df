package domain

// Caller is the identity attached to an operation. The engine never interprets it;
// it is handed to the access guard as-is.
type Caller struct {
	UserID string
	Tenant string
	Claims map[string]string
}

func (c Caller) Anonymous() bool {
	return c.UserID == "" && c.Tenant == ""
}
