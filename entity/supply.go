package entity

// Material is an organization-wide (or department-restricted) consumable.
type Material struct {
	Meta
	Tombstone

	Organization string  `dynamodbav:"organization" validate:"required"`
	Department   string  `dynamodbav:"department,omitempty"`
	Name         string  `dynamodbav:"name" validate:"required,max=200"`
	Category     string  `dynamodbav:"category,omitempty"`
	Unit         string  `dynamodbav:"unit,omitempty"`
	Price        float64 `dynamodbav:"price,omitempty" validate:"gte=0"`
}

func (m *Material) Kind() Kind { return KindMaterial }

func (m *Material) Scope() Scope {
	return Scope{Organization: m.Organization, Department: m.Department}
}

func (m *Material) Owner() Ref { return NewRef(KindOrganization, m.Organization) }

func (m *Material) References() []Reference { return nil }

func (m *Material) UniqueFields() []UniqueField {
	return uniqueIf("name", m.Name, m.Organization)
}

func (m *Material) isRecord() {}

// Vendor is an external contractor for project tasks.
type Vendor struct {
	Meta
	Tombstone

	Organization string `dynamodbav:"organization" validate:"required"`
	Name         string `dynamodbav:"name" validate:"required,max=200"`
	Email        string `dynamodbav:"email,omitempty" validate:"omitempty,email"`
	Phone        string `dynamodbav:"phone,omitempty" validate:"omitempty,max=32"`
	Address      string `dynamodbav:"address,omitempty"`
}

func (v *Vendor) Kind() Kind { return KindVendor }

func (v *Vendor) Scope() Scope { return Scope{Organization: v.Organization} }

func (v *Vendor) Owner() Ref { return NewRef(KindOrganization, v.Organization) }

func (v *Vendor) References() []Reference { return nil }

func (v *Vendor) UniqueFields() []UniqueField {
	return uniqueIf("name", v.Name, v.Organization)
}

func (v *Vendor) isRecord() {}
