package models

// 認証系エンドポイントのリクエスト/レスポンス定義。バリデーションはginのbindingタグで行う

type SignupRequest struct {
	Mobile   string `json:"mobile" binding:"required"`
	Name     string `json:"name"`
	Password string `json:"password" binding:"required,min=8"`
}

type LoginRequest struct {
	Mobile   string `json:"mobile" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type SendOtpRequest struct {
	Mobile string `json:"mobile" binding:"required"`
}

type VerifyOtpRequest struct {
	Mobile string `json:"mobile" binding:"required"`
	Otp    string `json:"otp" binding:"required"`
}

type ChangePasswordRequest struct {
	OldPassword string `json:"old_password" binding:"required"`
	NewPassword string `json:"new_password" binding:"required,min=8"`
}

type ResetPasswordWithOtpRequest struct {
	Mobile      string `json:"mobile" binding:"required"`
	Otp         string `json:"otp" binding:"required"`
	NewPassword string `json:"new_password" binding:"required,min=8"`
}

type TokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

type OtpResponse struct {
	Otp     string `json:"otp"`
	Message string `json:"message"`
}

type MessageResponse struct {
	Message string `json:"message"`
}

type UserProfileResponse struct {
	ID     uint   `json:"id"`
	Name   string `json:"name"`
	Mobile string `json:"mobile"`
	Tier   string `json:"tier"`
	IsPro  bool   `json:"is_pro"`
}

type SubscriptionStatusResponse struct {
	Tier string `json:"tier"`
}

type CheckoutResponse struct {
	CheckoutURL string `json:"checkout_url"`
}
