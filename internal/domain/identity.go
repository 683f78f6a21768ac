package domain

// Identity is the signed-in actor.
type Identity struct {
	UID     string `json:"uid"`
	Name    string `json:"name"`
	Email   string `json:"email"`
	Phone   string `json:"phone,omitempty"`
	Avatar  string `json:"avatar,omitempty"`
	IsAdmin bool   `json:"isAdmin"`
}

// Session is what survives a reload: the identity plus its signed token.
type Session struct {
	Identity Identity `json:"identity"`
	Token    string   `json:"token"`
}

type Registration struct {
	Name     string `json:"name" validate:"required,max=100"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password"`
}

// ProfilePatch holds the only profile fields a user may edit.
type ProfilePatch struct {
	Name   *string `json:"name,omitempty"`
	Phone  *string `json:"phone,omitempty"`
	Avatar *string `json:"avatar,omitempty"`
}

// PatchFromMap keeps the editable keys of a partial update and drops everything else,
// isAdmin and email included.
func PatchFromMap(in map[string]any) ProfilePatch {
	var p ProfilePatch
	str := func(key string) *string {
		v, ok := in[key].(string)
		if !ok {
			return nil
		}
		return &v
	}
	p.Name = str("name")
	p.Phone = str("phone")
	p.Avatar = str("avatar")
	return p
}

func (p ProfilePatch) Empty() bool {
	return p.Name == nil && p.Phone == nil && p.Avatar == nil
}

func (p ProfilePatch) Apply(id Identity) Identity {
	if p.Name != nil {
		id.Name = *p.Name
	}
	if p.Phone != nil {
		id.Phone = *p.Phone
	}
	if p.Avatar != nil {
		id.Avatar = *p.Avatar
	}
	return id
}
