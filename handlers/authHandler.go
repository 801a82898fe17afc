package handlers

import (
	"errors"
	"net/http"

	"chatgate/auth"
	"chatgate/database"
	"chatgate/models"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// ユーザー登録ハンドラー
func Signup(users *database.UserStore, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req models.SignupRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			abortWithError(c, http.StatusBadRequest, err.Error())
			return
		}

		hash, err := auth.HashPassword(req.Password)
		if err != nil {
			logger.Error("パスワードのハッシュ化に失敗", zap.Error(err))
			abortWithError(c, http.StatusInternalServerError, "Failed to create user")
			return
		}

		user := &models.User{Mobile: req.Mobile, Name: req.Name, PasswordHash: hash}
		if err := users.Create(c.Request.Context(), user); err != nil {
			if errors.Is(err, database.ErrMobileTaken) {
				abortWithError(c, http.StatusBadRequest, "Mobile number already registered")
				return
			}
			logger.Error("ユーザー登録に失敗", zap.Error(err))
			abortWithError(c, http.StatusInternalServerError, "Failed to create user")
			return
		}

		logger.Info("ユーザー登録完了", zap.Uint("userID", user.ID))
		c.JSON(http.StatusCreated, models.MessageResponse{Message: "User registered successfully"})
	}
}

// OTPの送信はモック。コードをレスポンスで返す
func SendOtp(otps *auth.OTPStore, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req models.SendOtpRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			abortWithError(c, http.StatusBadRequest, err.Error())
			return
		}

		code, err := otps.Issue(c.Request.Context(), auth.PurposeLogin, req.Mobile)
		if err != nil {
			logger.Error("OTPの発行に失敗", zap.Error(err))
			abortWithError(c, http.StatusInternalServerError, "Failed to send OTP")
			return
		}
		c.JSON(http.StatusOK, models.OtpResponse{Otp: code, Message: "OTP sent successfully (mocked for dev)."})
	}
}

func otpStatus(err error) (int, string) {
	switch {
	case errors.Is(err, auth.ErrOTPNotFound):
		return http.StatusNotFound, "OTP expired or not found"
	case errors.Is(err, auth.ErrInvalidOTP):
		return http.StatusUnauthorized, "Invalid OTP"
	default:
		return http.StatusInternalServerError, "Failed to verify OTP"
	}
}

func issueToken(c *gin.Context, tokens *auth.TokenIssuer, user *models.User, logger *zap.Logger) {
	token, err := tokens.Issue(user)
	if err != nil {
		logger.Error("トークン生成に失敗しました", zap.Error(err))
		abortWithError(c, http.StatusInternalServerError, "Failed to generate token")
		return
	}
	c.JSON(http.StatusOK, models.TokenResponse{AccessToken: token, TokenType: "bearer"})
}

func VerifyOtp(users *database.UserStore, otps *auth.OTPStore, tokens *auth.TokenIssuer, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req models.VerifyOtpRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			abortWithError(c, http.StatusBadRequest, err.Error())
			return
		}

		if err := otps.Verify(c.Request.Context(), auth.PurposeLogin, req.Mobile, req.Otp); err != nil {
			status, message := otpStatus(err)
			if status == http.StatusInternalServerError {
				logger.Error("OTPの検証に失敗", zap.Error(err))
			}
			abortWithError(c, status, message)
			return
		}

		user, ok := findUserByMobile(c, users, req.Mobile, logger)
		if !ok {
			return
		}
		issueToken(c, tokens, user, logger)
	}
}

func findUserByMobile(c *gin.Context, users *database.UserStore, mobile string, logger *zap.Logger) (*models.User, bool) {
	user, err := users.FindByMobile(c.Request.Context(), mobile)
	if errors.Is(err, database.ErrNotFound) {
		abortWithError(c, http.StatusNotFound, "User not found")
		return nil, false
	}
	if err != nil {
		logger.Error("ユーザーの取得に失敗", zap.Error(err))
		abortWithError(c, http.StatusInternalServerError, "Internal server error")
		return nil, false
	}
	return user, true
}

func Login(users *database.UserStore, tokens *auth.TokenIssuer, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req models.LoginRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			abortWithError(c, http.StatusBadRequest, err.Error())
			return
		}

		user, ok := findUserByMobile(c, users, req.Mobile, logger)
		if !ok {
			return
		}
		if err := auth.CheckPassword(user.PasswordHash, req.Password); err != nil {
			if !errors.Is(err, auth.ErrPasswordMismatch) {
				logger.Error("パスワードの検証に失敗", zap.Error(err))
			}
			abortWithError(c, http.StatusUnauthorized, "Invalid credentials")
			return
		}
		issueToken(c, tokens, user, logger)
	}
}

func ForgotPassword(users *database.UserStore, otps *auth.OTPStore, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req models.SendOtpRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			abortWithError(c, http.StatusBadRequest, err.Error())
			return
		}
		if _, ok := findUserByMobile(c, users, req.Mobile, logger); !ok {
			return
		}

		code, err := otps.Issue(c.Request.Context(), auth.PurposeReset, req.Mobile)
		if err != nil {
			logger.Error("リセット用OTPの発行に失敗", zap.Error(err))
			abortWithError(c, http.StatusInternalServerError, "Failed to send OTP")
			return
		}
		c.JSON(http.StatusOK, models.OtpResponse{Otp: code, Message: "Reset OTP sent successfully (mocked for dev)"})
	}
}

// ログイン中のユーザーが旧パスワードを確認した上で変更する
func ChangePassword(users *database.UserStore, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, ok := currentUser(c)
		if !ok {
			return
		}
		var req models.ChangePasswordRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			abortWithError(c, http.StatusBadRequest, err.Error())
			return
		}

		if err := auth.CheckPassword(user.PasswordHash, req.OldPassword); err != nil {
			abortWithError(c, http.StatusUnauthorized, "Invalid old password.")
			return
		}
		updatePassword(c, users, user.ID, req.NewPassword, "Password updated successfully", logger)
	}
}

func updatePassword(c *gin.Context, users *database.UserStore, userID uint, password, message string, logger *zap.Logger) {
	hash, err := auth.HashPassword(password)
	if err != nil {
		logger.Error("パスワードのハッシュ化に失敗", zap.Error(err))
		abortWithError(c, http.StatusInternalServerError, "Failed to update password")
		return
	}
	if err := users.UpdatePassword(c.Request.Context(), userID, hash); err != nil {
		logger.Error("パスワードの更新に失敗", zap.Uint("userID", userID), zap.Error(err))
		abortWithError(c, http.StatusInternalServerError, "Failed to update password")
		return
	}
	c.JSON(http.StatusOK, models.MessageResponse{Message: message})
}

func ResetPasswordWithOtp(users *database.UserStore, otps *auth.OTPStore, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req models.ResetPasswordWithOtpRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			abortWithError(c, http.StatusBadRequest, err.Error())
			return
		}

		user, ok := findUserByMobile(c, users, req.Mobile, logger)
		if !ok {
			return
		}
		if err := otps.Verify(c.Request.Context(), auth.PurposeReset, req.Mobile, req.Otp); err != nil {
			status, message := otpStatus(err)
			if status == http.StatusInternalServerError {
				logger.Error("リセット用OTPの検証に失敗", zap.Error(err))
			}
			abortWithError(c, status, message)
			return
		}
		updatePassword(c, users, user.ID, req.NewPassword, "Password reset successfully", logger)
	}
}
