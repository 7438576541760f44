package entity

// PlatformScope is the uniqueness scope shared by all organizations.
const PlatformScope = "platform"

// Organization is a tenant, the root of the ownership tree.
type Organization struct {
	Meta
	Tombstone

	Name          string `dynamodbav:"name" validate:"required,max=200"`
	Email         string `dynamodbav:"email" validate:"required,email"`
	Phone         string `dynamodbav:"phone,omitempty" validate:"omitempty,max=32"`
	Address       string `dynamodbav:"address,omitempty"`
	IsPlatformOrg bool   `dynamodbav:"is_platform_org"`
}

func (o *Organization) Kind() Kind { return KindOrganization }

// Scope of an organization is the organization itself.
func (o *Organization) Scope() Scope { return Scope{Organization: o.ID} }

func (o *Organization) Owner() Ref { return Ref{} }

func (o *Organization) References() []Reference { return nil }

func (o *Organization) UniqueFields() []UniqueField {
	var out []UniqueField
	out = append(out, uniqueIf("name", o.Name, PlatformScope)...)
	out = append(out, uniqueIf("email", o.Email, PlatformScope)...)
	out = append(out, uniqueIf("phone", o.Phone, PlatformScope)...)
	return out
}

func (o *Organization) isRecord() {}

// Department groups users and tasks inside an organization.
type Department struct {
	Meta
	Tombstone

	Organization string `dynamodbav:"organization" validate:"required"`
	Name         string `dynamodbav:"name" validate:"required,max=200"`
	Description  string `dynamodbav:"description,omitempty"`
	CreatedBy    string `dynamodbav:"created_by,omitempty"`
}

func (d *Department) Kind() Kind { return KindDepartment }

// Scope of a department names the department itself.
func (d *Department) Scope() Scope { return Scope{Organization: d.Organization, Department: d.ID} }

func (d *Department) Owner() Ref { return NewRef(KindOrganization, d.Organization) }

func (d *Department) References() []Reference {
	return []Reference{
		{Field: "created_by", Kind: KindUser, IDs: single(d.CreatedBy)},
	}
}

func (d *Department) UniqueFields() []UniqueField {
	return uniqueIf("name", d.Name, d.Organization)
}

func (d *Department) DropReferences(field string, ids []string) int {
	if field != "created_by" {
		return 0
	}
	return dropScalar(&d.CreatedBy, ids)
}

func (d *Department) isRecord() {}
