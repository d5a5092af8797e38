package domain

type TokenResponse struct {
	Success   bool   `json:"success"`
	Token     string `json:"token"`
	ExpiresIn int    `json:"expiresIn"`
}

type HealthResponse struct {
	Status string `json:"status"`
}
