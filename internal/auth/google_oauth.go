package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	googleoauth2 "google.golang.org/api/oauth2/v2"
	"google.golang.org/api/option"

	"github.com/hitoshi/belanjaku/internal/model"
)

// ErrUnverifiedProviderEmail はGoogleがメールアドレスを未確認と返した場合のエラー。
var ErrUnverifiedProviderEmail = errors.New("google account email is not verified")

// OAuthProvider はフェデレーションログインのIdPを表すインターフェース。
type OAuthProvider interface {
	// GetLoginURL はstateを埋め込んだ認可URLを生成する。
	GetLoginURL(state string) string
	// ExchangeCode は認可コードをトークンに交換し、プロフィールを取得する。
	ExchangeCode(ctx context.Context, code string) (*model.FederatedProfile, error)
}

// GoogleOAuthConfig はGoogle OAuthプロバイダーの設定。
type GoogleOAuthConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string

	// HTTPClient はトークン交換とUserInfo取得に使うクライアント。nilの場合はhttp.DefaultClient。
	HTTPClient *http.Client

	// テスト用にオーバーライド可能なエンドポイント
	Endpoint         oauth2.Endpoint
	UserInfoEndpoint string
}

// GoogleOAuthProvider はGoogle OAuth 2.0の認可コードフローを提供する。
type GoogleOAuthProvider struct {
	oauth            *oauth2.Config
	httpClient       *http.Client
	userInfoEndpoint string
}

// NewGoogleOAuthProvider はGoogleOAuthProviderを生成する。
func NewGoogleOAuthProvider(config GoogleOAuthConfig) *GoogleOAuthProvider {
	endpoint := config.Endpoint
	if endpoint.AuthURL == "" || endpoint.TokenURL == "" {
		endpoint = google.Endpoint
	}
	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	return &GoogleOAuthProvider{
		oauth: &oauth2.Config{
			ClientID:     config.ClientID,
			ClientSecret: config.ClientSecret,
			RedirectURL:  config.RedirectURL,
			Endpoint:     endpoint,
			Scopes: []string{
				googleoauth2.OpenIDScope,
				googleoauth2.UserinfoEmailScope,
				googleoauth2.UserinfoProfileScope,
			},
		},
		httpClient:       httpClient,
		userInfoEndpoint: config.UserInfoEndpoint,
	}
}

// GetLoginURL はGoogleの認可URLを生成する。
func (p *GoogleOAuthProvider) GetLoginURL(state string) string {
	return p.oauth.AuthCodeURL(state, oauth2.SetAuthURLParam("prompt", "select_account"))
}

// ExchangeCode は認可コードをアクセストークンに交換し、UserInfoからプロフィールを組み立てる。
func (p *GoogleOAuthProvider) ExchangeCode(ctx context.Context, code string) (*model.FederatedProfile, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, p.httpClient)

	// 1. 認可コードをアクセストークンに交換
	token, err := p.oauth.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("failed to exchange token: %w", err)
	}

	// 2. アクセストークンでユーザー情報を取得
	info, err := p.fetchUserInfo(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch user info: %w", err)
	}

	if info.Id == "" || info.Email == "" {
		return nil, fmt.Errorf("incomplete user info: id or email missing")
	}
	if info.VerifiedEmail != nil && !*info.VerifiedEmail {
		return nil, ErrUnverifiedProviderEmail
	}

	return &model.FederatedProfile{
		Provider:       model.ProviderGoogle,
		ProviderUserID: info.Id,
		Email:          info.Email,
		Name:           info.Name,
		Image:          info.Picture,
	}, nil
}

func (p *GoogleOAuthProvider) fetchUserInfo(ctx context.Context, token *oauth2.Token) (*googleoauth2.Userinfo, error) {
	opts := []option.ClientOption{
		option.WithHTTPClient(p.oauth.Client(ctx, token)),
	}
	if p.userInfoEndpoint != "" {
		opts = append(opts, option.WithEndpoint(p.userInfoEndpoint))
	}

	svc, err := googleoauth2.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create oauth2 service: %w", err)
	}

	return svc.Userinfo.Get().Context(ctx).Do()
}

// compile-time interface check
var _ OAuthProvider = (*GoogleOAuthProvider)(nil)
