package domain

// Site is the configuration-service view of a selling site
type Site struct {
	ID              string   `json:"site_id"`
	BusinessGroupID string   `json:"business_group_id"`
	Name            string   `json:"name"`
	URL             string   `json:"url"`
	FraudEnabled    bool     `json:"fraud_enabled"`
	PublicKeys      []string `json:"public_keys"`
	Descriptor      string   `json:"descriptor"`
	SupportLink     string   `json:"support_link"`
	UsesMGPG        bool     `json:"uses_mgpg"`
}

// HasPublicKey reports whether keyID belongs to the site
func (s Site) HasPublicKey(keyID string) bool {
	for _, k := range s.PublicKeys {
		if k == keyID {
			return true
		}
	}
	return false
}

// MemberInfo is what the member-profile service knows about a member
type MemberInfo struct {
	MemberID  string `json:"member_id"`
	Email     string `json:"email"`
	Username  string `json:"username"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Country   string `json:"country"`
}

// UserInfo is the payer as known to the session. Fields fill in as the
// purchase progresses.
type UserInfo struct {
	IP        string `json:"ip"`
	Country   string `json:"country"`
	Email     string `json:"email,omitempty"`
	Username  string `json:"username,omitempty"`
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
	ZipCode   string `json:"zip_code,omitempty"`
	Phone     string `json:"phone,omitempty"`
}

// Merge returns u with every non-empty field of other applied
func (u UserInfo) Merge(other UserInfo) UserInfo {
	if other.IP != "" {
		u.IP = other.IP
	}
	if other.Country != "" {
		u.Country = other.Country
	}
	if other.Email != "" {
		u.Email = other.Email
	}
	if other.Username != "" {
		u.Username = other.Username
	}
	if other.FirstName != "" {
		u.FirstName = other.FirstName
	}
	if other.LastName != "" {
		u.LastName = other.LastName
	}
	if other.ZipCode != "" {
		u.ZipCode = other.ZipCode
	}
	if other.Phone != "" {
		u.Phone = other.Phone
	}
	return u
}
