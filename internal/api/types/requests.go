package types

type RegisterRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8"`
	Name     string `json:"name" validate:"required"`
}

type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type CredentialStoreRequest struct {
	Provider string `json:"provider" validate:"required,oneof=hetzner dokploy"`
	Token    string `json:"token" validate:"required"`
	BaseURL  string `json:"base_url" validate:"omitempty,url"`
}

type ServerCreateRequest struct {
	Name       string `json:"name" validate:"required,hostname_rfc1123,max=63"`
	ServerType string `json:"server_type" validate:"required"`
	Image      string `json:"image" validate:"required"`
	Location   string `json:"location" validate:"required"`
}

type DeploymentCreateRequest struct {
	ServerID   string            `json:"server_id" validate:"required,uuid4"`
	SiteName   string            `json:"site_name" validate:"required,hostname_rfc1123,max=63"`
	Domain     string            `json:"domain" validate:"required,fqdn"`
	AdminEmail string            `json:"admin_email" validate:"required,email"`
	Config     map[string]string `json:"config"`
}
