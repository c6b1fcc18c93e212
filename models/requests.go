package models

// CallbackRequest carries the authorization code from the desktop client
type CallbackRequest struct {
	Code string `json:"code" validate:"required"`
}

// RefreshRequest carries a refresh token for the refresh-token grant
type RefreshRequest struct {
	RefreshToken string `json:"refreshToken" validate:"required"`
}

// CreateFolderRequest asks for a folder in the provider's private root
type CreateFolderRequest struct {
	Name     string `json:"name" validate:"required,max=255"`
	ParentID string `json:"parentId"`
}
