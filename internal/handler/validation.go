package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/hitoshi/belanjaku/internal/middleware"
	"github.com/hitoshi/belanjaku/internal/model"
)

// maxRequestBodyBytes は認証APIが受け付けるリクエストボディの上限。
const maxRequestBodyBytes = 16 << 10

// errInvalidJSON はボディがJSONとして解釈できない場合のエラー。
var errInvalidJSON = errors.New("request body is not valid JSON")

// requestValidator はリクエスト構造体のvalidateタグを検査する。
// エラーのフィールド名にはjsonタグ名を使う。
type requestValidator struct {
	validate *validator.Validate
}

func newRequestValidator() *requestValidator {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return &requestValidator{validate: v}
}

// decode はJSONボディをdstに読み込み、validateタグを検査する。
// JSONが不正な場合はerrInvalidJSON、検査に失敗した場合はvalidator.ValidationErrorsを返す。
func (rv *requestValidator) decode(w http.ResponseWriter, r *http.Request, dst any) error {
	body := http.MaxBytesReader(w, r.Body, maxRequestBodyBytes)
	if err := json.NewDecoder(body).Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("%w: %v", errInvalidJSON, err)
	}
	return rv.validate.Struct(dst)
}

// writeDecodeError はdecodeのエラーを統一エラーフォーマットで書き込む。
func writeDecodeError(w http.ResponseWriter, err error) {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		fields := make([]string, 0, len(verrs))
		for _, fe := range verrs {
			fields = append(fields, fe.Field())
		}
		middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewValidationError(strings.Join(fields, ", ")))
		return
	}
	middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewInvalidRequestError())
}

// writeJSON はvをJSONとして書き込む。
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
