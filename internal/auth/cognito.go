package auth

import (
	"context"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"

	"crowdfund/internal/utils"
	"crowdfund/pkg/types"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cognitoidentityprovider"
	ctypes "github.com/aws/aws-sdk-go-v2/service/cognitoidentityprovider/types"
	"github.com/sirupsen/logrus"
)

type CognitoAPI interface {
	SignUp(ctx context.Context, params *cognitoidentityprovider.SignUpInput, optFns ...func(*cognitoidentityprovider.Options)) (*cognitoidentityprovider.SignUpOutput, error)
	ConfirmSignUp(ctx context.Context, params *cognitoidentityprovider.ConfirmSignUpInput, optFns ...func(*cognitoidentityprovider.Options)) (*cognitoidentityprovider.ConfirmSignUpOutput, error)
	InitiateAuth(ctx context.Context, params *cognitoidentityprovider.InitiateAuthInput, optFns ...func(*cognitoidentityprovider.Options)) (*cognitoidentityprovider.InitiateAuthOutput, error)
	ForgotPassword(ctx context.Context, params *cognitoidentityprovider.ForgotPasswordInput, optFns ...func(*cognitoidentityprovider.Options)) (*cognitoidentityprovider.ForgotPasswordOutput, error)
	ConfirmForgotPassword(ctx context.Context, params *cognitoidentityprovider.ConfirmForgotPasswordInput, optFns ...func(*cognitoidentityprovider.Options)) (*cognitoidentityprovider.ConfirmForgotPasswordOutput, error)
	GlobalSignOut(ctx context.Context, params *cognitoidentityprovider.GlobalSignOutInput, optFns ...func(*cognitoidentityprovider.Options)) (*cognitoidentityprovider.GlobalSignOutOutput, error)
}

type Client struct {
	api      CognitoAPI
	clientID string
	logger   *logrus.Logger
}

func NewClient(api CognitoAPI, clientID string, logger *logrus.Logger) *Client {
	if logger == nil {
		logger = logrus.New()
		logger.SetOutput(io.Discard)
	}
	return &Client{api: api, clientID: clientID, logger: logger}
}

var (
	hasUpperReg  = regexp.MustCompile(`[A-Z]`)
	hasLowerReg  = regexp.MustCompile(`[a-z]`)
	hasDigitReg  = regexp.MustCompile(`[0-9]`)
	hasSymbolReg = regexp.MustCompile(`[^A-Za-z0-9]`)
)

const minPasswordLength = 12

// ValidatePassword mirrors the user pool's password policy.
func ValidatePassword(password string) error {
	if len(password) < minPasswordLength ||
		!hasUpperReg.MatchString(password) ||
		!hasLowerReg.MatchString(password) ||
		!hasDigitReg.MatchString(password) ||
		!hasSymbolReg.MatchString(password) {
		return &types.Error{
			Code:   types.CodeAuthWeakPassword,
			Field:  "password",
			Detail: "must be at least 12 characters and include uppercase, lowercase, number, and symbol",
		}
	}
	return nil
}

type RegisterInput struct {
	Email      string `json:"email" validate:"required,email"`
	Password   string `json:"password" validate:"required"`
	GivenName  string `json:"givenName" validate:"required,max=100"`
	FamilyName string `json:"familyName" validate:"required,max=100"`
}

// Register signs the user up and returns the identity provider's subject.
func (c *Client) Register(ctx context.Context, input RegisterInput) (string, error) {
	input.Email = strings.TrimSpace(input.Email)
	input.GivenName = strings.TrimSpace(input.GivenName)
	input.FamilyName = strings.TrimSpace(input.FamilyName)

	if err := utils.ValidateStruct(input); err != nil {
		return "", err
	}

	if err := ValidatePassword(input.Password); err != nil {
		return "", err
	}

	out, err := c.api.SignUp(ctx, &cognitoidentityprovider.SignUpInput{
		ClientId: aws.String(c.clientID),
		Username: aws.String(input.Email),
		Password: aws.String(input.Password),
		UserAttributes: []ctypes.AttributeType{
			{Name: aws.String("email"), Value: aws.String(input.Email)},
			{Name: aws.String("given_name"), Value: aws.String(input.GivenName)},
			{Name: aws.String("family_name"), Value: aws.String(input.FamilyName)},
		},
	})
	if err != nil {
		return "", c.mapError("sign up", err)
	}

	return aws.ToString(out.UserSub), nil
}

func (c *Client) ConfirmRegistration(ctx context.Context, email, code string) error {
	_, err := c.api.ConfirmSignUp(ctx, &cognitoidentityprovider.ConfirmSignUpInput{
		ClientId:         aws.String(c.clientID),
		Username:         aws.String(strings.TrimSpace(email)),
		ConfirmationCode: aws.String(strings.TrimSpace(code)),
	})
	return c.mapError("confirm sign up", err)
}

func (c *Client) Login(ctx context.Context, email, password string) (*types.AuthSession, error) {
	out, err := c.api.InitiateAuth(ctx, &cognitoidentityprovider.InitiateAuthInput{
		AuthFlow: ctypes.AuthFlowTypeUserPasswordAuth,
		ClientId: aws.String(c.clientID),
		AuthParameters: map[string]string{
			"USERNAME": strings.TrimSpace(email),
			"PASSWORD": password,
		},
	})
	if err != nil {
		return nil, c.mapError("initiate auth", err)
	}

	if out.AuthenticationResult == nil || out.AuthenticationResult.AccessToken == nil {
		// challenges such as NEW_PASSWORD_REQUIRED are not supported
		return nil, &types.Error{Code: types.CodeAuthInvalidCredentials, Detail: fmt.Sprintf("unsupported auth challenge %s", out.ChallengeName)}
	}

	return &types.AuthSession{
		AccessToken:  aws.ToString(out.AuthenticationResult.AccessToken),
		RefreshToken: aws.ToString(out.AuthenticationResult.RefreshToken),
		ExpiresIn:    int(out.AuthenticationResult.ExpiresIn),
	}, nil
}

// ForgotPassword sends a recovery code. Unknown emails succeed silently.
func (c *Client) ForgotPassword(ctx context.Context, email string) error {
	_, err := c.api.ForgotPassword(ctx, &cognitoidentityprovider.ForgotPasswordInput{
		ClientId: aws.String(c.clientID),
		Username: aws.String(strings.TrimSpace(email)),
	})

	var notFound *ctypes.UserNotFoundException
	if errors.As(err, &notFound) {
		return nil
	}

	return c.mapError("forgot password", err)
}

// ResetPassword consumes the userId and secret carried by the recovery link.
func (c *Client) ResetPassword(ctx context.Context, userID, secret, newPassword string) error {
	if strings.TrimSpace(userID) == "" || strings.TrimSpace(secret) == "" {
		return &types.Error{Code: types.CodeAuthInvalidCode, Detail: "recovery link is incomplete"}
	}

	if err := ValidatePassword(newPassword); err != nil {
		return err
	}

	_, err := c.api.ConfirmForgotPassword(ctx, &cognitoidentityprovider.ConfirmForgotPasswordInput{
		ClientId:         aws.String(c.clientID),
		Username:         aws.String(strings.TrimSpace(userID)),
		ConfirmationCode: aws.String(strings.TrimSpace(secret)),
		Password:         aws.String(newPassword),
	})
	return c.mapError("confirm forgot password", err)
}

// Logout revokes every token issued to the session's user.
func (c *Client) Logout(ctx context.Context, accessToken string) error {
	_, err := c.api.GlobalSignOut(ctx, &cognitoidentityprovider.GlobalSignOutInput{
		AccessToken: aws.String(accessToken),
	})

	var notAuthorized *ctypes.NotAuthorizedException
	if errors.As(err, &notAuthorized) {
		// already revoked or expired
		return nil
	}

	return c.mapError("global sign out", err)
}

func (c *Client) mapError(op string, err error) error {
	if err == nil {
		return nil
	}

	var (
		notAuthorized *ctypes.NotAuthorizedException
		userNotFound  *ctypes.UserNotFoundException
		notConfirmed  *ctypes.UserNotConfirmedException
		userExists    *ctypes.UsernameExistsException
		codeMismatch  *ctypes.CodeMismatchException
		expiredCode   *ctypes.ExpiredCodeException
		invalidPw     *ctypes.InvalidPasswordException
		invalidParam  *ctypes.InvalidParameterException
		tooMany       *ctypes.TooManyRequestsException
		limitExceeded *ctypes.LimitExceededException
	)

	var code types.ErrorCode
	switch {
	case errors.As(err, &notAuthorized), errors.As(err, &userNotFound):
		code = types.CodeAuthInvalidCredentials
	case errors.As(err, &notConfirmed):
		code = types.CodeAuthUserNotConfirmed
	case errors.As(err, &userExists):
		code = types.CodeAuthUserExists
	case errors.As(err, &codeMismatch), errors.As(err, &expiredCode):
		code = types.CodeAuthInvalidCode
	case errors.As(err, &invalidPw):
		code = types.CodeAuthWeakPassword
	case errors.As(err, &invalidParam):
		code = types.CodeValidation
	case errors.As(err, &tooMany), errors.As(err, &limitExceeded):
		code = types.CodeRateLimited
	default:
		c.logger.WithError(err).WithField("operation", op).Error("unhandled cognito error")
		return fmt.Errorf("failed to %s: %w", op, err)
	}

	return &types.Error{Code: code, Err: err}
}
