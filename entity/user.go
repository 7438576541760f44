package entity

// Role is a user's platform role.
type Role string

const (
	RoleSuperAdmin Role = "SuperAdmin"
	RoleAdmin      Role = "Admin"
	RoleManager    Role = "Manager"
	RoleUser       Role = "User"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	switch r {
	case RoleSuperAdmin, RoleAdmin, RoleManager, RoleUser:
		return true
	}
	return false
}

// User belongs to one department of one organization.
type User struct {
	Meta
	Tombstone

	Organization string `dynamodbav:"organization" validate:"required"`
	Department   string `dynamodbav:"department" validate:"required"`
	FirstName    string `dynamodbav:"first_name" validate:"required,max=100"`
	LastName     string `dynamodbav:"last_name" validate:"required,max=100"`
	Email        string `dynamodbav:"email" validate:"required,email"`
	Phone        string `dynamodbav:"phone,omitempty" validate:"omitempty,max=32"`
	Role         Role   `dynamodbav:"role" validate:"required,oneof=SuperAdmin Admin Manager User"`
	Position     string `dynamodbav:"position,omitempty"`

	// IsHOD marks the head of department; at most one live user per department.
	IsHOD bool `dynamodbav:"is_hod"`
}

func (u *User) Kind() Kind { return KindUser }

func (u *User) Scope() Scope { return Scope{Organization: u.Organization, Department: u.Department} }

func (u *User) Owner() Ref { return NewRef(KindDepartment, u.Department) }

func (u *User) References() []Reference { return nil }

func (u *User) UniqueFields() []UniqueField {
	var out []UniqueField
	out = append(out, uniqueIf("email", u.Email, u.Organization)...)
	out = append(out, uniqueIf("phone", u.Phone, u.Organization)...)
	if u.IsHOD {
		out = append(out, UniqueField{Field: "hod", Value: "true", Scope: u.Department})
	}
	return out
}

// FullName joins first and last names.
func (u *User) FullName() string {
	if u.LastName == "" {
		return u.FirstName
	}
	return u.FirstName + " " + u.LastName
}

func (u *User) isRecord() {}
