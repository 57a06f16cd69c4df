// Package account はAccount Serviceを提供する。
//
// 会員登録・パスワードログイン・Googleログインの3操作を、Identity Store
// （repository.UserRepository）とCredential Authority（credential.Authority）の
// 呼び出しに変換し、結果を常にmodel.AuthResultとして返す。
// 下位層のエラーはこのパッケージの境界で全てAuthResultに変換され、呼び出し側に
// errorとして伝播することはない。
package account

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/belanjaku/internal/credential"
	"github.com/hitoshi/belanjaku/internal/metrics"
	"github.com/hitoshi/belanjaku/internal/model"
	"github.com/hitoshi/belanjaku/internal/repository"
	"github.com/hitoshi/belanjaku/internal/security"
)

// minPasswordLength は会員登録で受け付ける最短パスワード長。
const minPasswordLength = 8

// outcomeSuccess はメトリクスに記録する成功ラベル。
const outcomeSuccess = "success"

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// credentialErrors は利用者に原文のまま返してよいAuthorityのエラー。
var credentialErrors = []error{
	credential.ErrEmailInUse,
	credential.ErrWeakPassword,
}

// RegisterInput は会員登録の入力。
type RegisterInput struct {
	Email    string
	Password string
	Role     string
}

// LoginInput はパスワードログインの入力。
type LoginInput struct {
	Email    string
	Password string
}

// Service はAccount Serviceの実装。
type Service struct {
	users     repository.UserRepository
	authority credential.Authority
	profiles  security.ProfileSanitizer
	metrics   metrics.MetricsCollector
	now       func() time.Time
}

// NewService はServiceを生成する。collectorがnilの場合はメトリクスを記録しない。
func NewService(
	users repository.UserRepository,
	authority credential.Authority,
	profiles security.ProfileSanitizer,
	collector metrics.MetricsCollector,
) *Service {
	if collector == nil {
		collector = metrics.Noop{}
	}
	return &Service{
		users:     users,
		authority: authority,
		profiles:  profiles,
		metrics:   collector,
		now:       time.Now,
	}
}

// Register はメールアドレスとパスワードで会員登録する。
//
// 処理順序は 入力検証 → 重複確認 → アカウント作成 → 確認メール送信 → ユーザーレコード作成。
// 入力検証で失敗した場合はIdentity StoreにもAuthorityにもアクセスしない。
func (s *Service) Register(ctx context.Context, in RegisterInput) model.AuthResult {
	result := s.register(ctx, in)
	s.metrics.RecordRegistration(outcomeOf(result))
	return result
}

func (s *Service) register(ctx context.Context, in RegisterInput) model.AuthResult {
	// 1. 入力検証
	if in.Email == "" || in.Password == "" {
		return model.Fail(model.KindInvalidInput, http.StatusBadRequest, model.MsgInvalidInput)
	}
	if !emailPattern.MatchString(in.Email) {
		return model.Fail(model.KindInvalidInput, http.StatusBadRequest, model.MsgInvalidEmail)
	}
	if len(in.Password) < minPasswordLength {
		return model.Fail(model.KindInvalidInput, http.StatusBadRequest, model.MsgPasswordTooShort)
	}

	// 2. 重複確認
	existing, err := s.users.FindByEmail(ctx, in.Email)
	if err != nil {
		slog.Error("failed to look up user before register", slog.String("error", err.Error()))
		return registerFailure(nil)
	}
	if existing != nil {
		return model.Fail(model.KindDuplicateEmail, http.StatusBadRequest, model.MsgEmailInUse)
	}

	// 3. Credential Authorityにアカウントを作成
	account, err := s.authority.CreateAccount(ctx, in.Email, in.Password)
	if err != nil {
		slog.Warn("credential account creation failed", slog.String("error", err.Error()))
		return registerFailure(err)
	}

	// 4. 確認メール送信。失敗しても登録は取り消さず、再送APIで回復させる
	if err := s.authority.SendVerification(ctx, account); err != nil {
		s.metrics.RecordVerificationEmail("failure")
		slog.Error("failed to send verification email",
			slog.String("account_id", account.ID),
			slog.String("error", err.Error()),
		)
	} else {
		s.metrics.RecordVerificationEmail(outcomeSuccess)
	}

	// 5. ユーザーレコード作成
	role := in.Role
	if role == "" {
		role = model.RoleUser
	}
	user := &model.User{
		ID:        account.ID,
		Email:     account.Email,
		Role:      role,
		CreatedAt: s.now(),
	}
	if err := s.users.Create(ctx, user); err != nil {
		// 6. レコードを作れなかった場合はアカウントを取り消し、同じメールアドレスで再登録できるようにする
		s.rollbackAccount(ctx, account.ID)
		if errors.Is(err, repository.ErrDuplicateEmail) {
			return model.Fail(model.KindDuplicateEmail, http.StatusBadRequest, model.MsgEmailInUse)
		}
		slog.Error("failed to create user record",
			slog.String("account_id", account.ID),
			slog.String("error", err.Error()),
		)
		return registerFailure(nil)
	}

	slog.Info("user registered", slog.String("user_id", user.ID))
	return model.OK(model.MsgRegisterSuccess, nil)
}

// rollbackAccount は登録途中で作成したアカウントを削除する。
// リクエストがキャンセルされていても取り消しは実行する。
func (s *Service) rollbackAccount(ctx context.Context, accountID string) {
	if err := s.authority.DeleteAccount(context.WithoutCancel(ctx), accountID); err != nil {
		slog.Error("failed to roll back credential account",
			slog.String("account_id", accountID),
			slog.String("error", err.Error()),
		)
		return
	}
	slog.Warn("credential account rolled back", slog.String("account_id", accountID))
}

// Login はメールアドレスとパスワードでログインする。
//
// Authorityへの照合にはIdentity Storeに保存されたメールアドレスを使う。
// パスワード不一致・アカウント無効・一時的な障害は区別せず"invalid credential"とする。
func (s *Service) Login(ctx context.Context, in LoginInput) model.AuthResult {
	result := s.login(ctx, in)
	s.metrics.RecordLoginAttempt(metrics.MethodCredentials, outcomeOf(result))
	return result
}

func (s *Service) login(ctx context.Context, in LoginInput) model.AuthResult {
	if in.Email == "" || in.Password == "" {
		return model.Fail(model.KindInvalidInput, http.StatusBadRequest, model.MsgInvalidInput)
	}

	// 1. Identity Storeからユーザーを取得
	user, err := s.users.FindByEmail(ctx, in.Email)
	if err != nil {
		slog.Error("failed to look up user for login", slog.String("error", err.Error()))
		return model.Fail(model.KindAuthorityError, http.StatusInternalServerError, model.MsgInvalidCredential)
	}
	if user == nil {
		return model.Fail(model.KindNotFound, http.StatusNotFound, model.MsgUserNotFound)
	}

	// 2. 保存済みのメールアドレスでパスワードを照合
	account, err := s.authority.SignIn(ctx, user.Email, in.Password)
	if err != nil {
		slog.Info("credential sign-in rejected",
			slog.String("user_id", user.ID),
			slog.String("reason", err.Error()),
		)
		return model.Fail(model.KindAuthorityError, http.StatusInternalServerError, model.MsgInvalidCredential)
	}

	// 3. メールアドレス確認済みでなければセッションを発行させない
	if !account.EmailVerified {
		return model.Fail(model.KindEmailNotVerified, http.StatusBadRequest, model.MsgEmailNotVerified)
	}

	return model.OK(model.MsgLoginSuccess, &model.UserProjection{
		Email:     account.Email,
		Role:      user.Role,
		CreatedAt: user.CreatedAt,
	})
}

// LoginWithGoogle はフェデレーションログインでユーザーレコードをメールアドレスをキーにupsertする。
// パスワードもメールアドレス確認状態も検査しない。
// onMergedには保存後のレコードが渡され、Session Gatewayはここからクレームを組み立てる。
func (s *Service) LoginWithGoogle(ctx context.Context, profile model.FederatedProfile, onMerged func(*model.User)) model.AuthResult {
	result := s.loginWithGoogle(ctx, profile, onMerged)
	s.metrics.RecordLoginAttempt(metrics.MethodGoogle, outcomeOf(result))
	return result
}

func (s *Service) loginWithGoogle(ctx context.Context, profile model.FederatedProfile, onMerged func(*model.User)) model.AuthResult {
	email := strings.TrimSpace(profile.Email)
	if email == "" {
		return model.Fail(model.KindInvalidInput, http.StatusBadRequest, model.MsgInvalidInput)
	}
	profile.Email = email
	profile.Name = s.profiles.SanitizeName(profile.Name)
	profile.Image = s.profiles.SafeImageURL(profile.Image)
	if profile.Provider == "" {
		profile.Provider = model.ProviderGoogle
	}

	// 一意制約違反（同時ログインによる競合）の場合は既存レコードへのマージをやり直す
	for attempt := 0; attempt < 2; attempt++ {
		user, err := s.upsertFederated(ctx, profile)
		if errors.Is(err, repository.ErrDuplicateEmail) {
			continue
		}
		if err != nil {
			slog.Error("federated upsert failed",
				slog.String("provider", profile.Provider),
				slog.String("error", err.Error()),
			)
			return model.Fail(model.KindAuthorityError, http.StatusInternalServerError, model.MsgLoginFailed)
		}

		if onMerged != nil {
			onMerged(user)
		}
		return model.OK(model.MsgLoginSuccess, user.Projection())
	}

	return model.Fail(model.KindAuthorityError, http.StatusInternalServerError, model.MsgLoginFailed)
}

// upsertFederated は既存レコードへのマージ、または新規作成を行う。
func (s *Service) upsertFederated(ctx context.Context, profile model.FederatedProfile) (*model.User, error) {
	now := s.now()

	existing, err := s.users.FindByEmail(ctx, profile.Email)
	if err != nil {
		return nil, err
	}

	if existing != nil {
		merged, err := s.users.Merge(ctx, existing.ID, federatedPatch(profile, now))
		if err != nil {
			return nil, err
		}
		if merged != nil {
			return merged, nil
		}
		// 検索後に削除された場合は新規作成に進む
	}

	role := profile.Role
	if role == "" {
		role = model.RoleUser
	}
	active := true
	user := &model.User{
		ID:             uuid.New().String(),
		Email:          profile.Email,
		Role:           role,
		Name:           profile.Name,
		Image:          profile.Image,
		Provider:       profile.Provider,
		ProviderUserID: profile.ProviderUserID,
		CreatedAt:      now,
		IsActive:       &active,
	}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, err
	}

	slog.Info("federated user created",
		slog.String("user_id", user.ID),
		slog.String("provider", user.Provider),
	)
	return user, nil
}

// federatedPatch はプロフィールの空でないフィールドだけをマージ対象にする。
func federatedPatch(profile model.FederatedProfile, now time.Time) repository.UserPatch {
	patch := repository.UserPatch{UpdatedAt: now}
	if profile.Name != "" {
		patch.Name = &profile.Name
	}
	if profile.Image != "" {
		patch.Image = &profile.Image
	}
	if profile.Provider != "" {
		patch.Provider = &profile.Provider
	}
	if profile.ProviderUserID != "" {
		patch.ProviderUserID = &profile.ProviderUserID
	}
	if profile.Role != "" {
		patch.Role = &profile.Role
	}
	return patch
}

// registerFailure はAuthority起因の登録失敗を組み立てる。
// 利用者向けのエラーは原文を返し、それ以外は内部情報を隠す。
func registerFailure(err error) model.AuthResult {
	msg := model.MsgRegisterFailed
	for _, known := range credentialErrors {
		if errors.Is(err, known) {
			msg = known.Error()
			break
		}
	}
	return model.Fail(model.KindAuthorityError, http.StatusBadRequest, msg)
}

// outcomeOf はメトリクスのoutcomeラベルを返す。
func outcomeOf(result model.AuthResult) string {
	if result.Status {
		return outcomeSuccess
	}
	return string(result.Kind)
}
