package user

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"testing"
	"time"

	"vidtube-backend/internal/auth"
)

func newTestMux(t *testing.T) (*http.ServeMux, *fakeStore) {
	t.Helper()

	store := newFakeStore()
	uploader := &fakeUploader{}
	issuer := auth.NewIssuer("access-secret", "refresh-secret", 15*time.Minute, time.Hour)
	service := NewService(store, issuer, uploader)
	handler := NewHandler(service, issuer)

	mux := http.NewServeMux()
	mux.HandleFunc("POST /users/register", handler.Register)
	mux.HandleFunc("POST /users/login", handler.Login)
	mux.HandleFunc("POST /users/refresh-token", handler.RefreshToken)
	mux.Handle("POST /users/logout", auth.Middleware(issuer, http.HandlerFunc(handler.Logout)))
	mux.Handle("GET /users/current-user", auth.Middleware(issuer, http.HandlerFunc(handler.CurrentUser)))

	return mux, store
}

type registerForm struct {
	fullName, email, userName, password string
	withAvatar                          bool
}

func registerRequest(t *testing.T, form registerForm) *http.Request {
	t.Helper()

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	for field, value := range map[string]string{
		"fullName": form.fullName,
		"email":    form.email,
		"userName": form.userName,
		"password": form.password,
	} {
		if err := writer.WriteField(field, value); err != nil {
			t.Fatalf("write field %s: %v", field, err)
		}
	}

	if form.withAvatar {
		header := textproto.MIMEHeader{}
		header.Set("Content-Disposition", `form-data; name="avatar"; filename="avatar.png"`)
		header.Set("Content-Type", "image/png")
		part, err := writer.CreatePart(header)
		if err != nil {
			t.Fatalf("create avatar part: %v", err)
		}
		if _, err := part.Write([]byte("png-bytes")); err != nil {
			t.Fatalf("write avatar part: %v", err)
		}
	}

	if err := writer.Close(); err != nil {
		t.Fatalf("close multipart writer: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/users/register", body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return req
}

func janeForm() registerForm {
	return registerForm{
		fullName:   "Jane Doe",
		email:      "jane@x.com",
		userName:   "janedoe",
		password:   "Abcdef1!",
		withAvatar: true,
	}
}

func do(mux *http.ServeMux, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response body: %v", err)
	}
	return body
}

func loginJane(t *testing.T, mux *http.ServeMux) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/users/login",
		strings.NewReader(`{"email":"jane@x.com","password":"Abcdef1!"}`))
	req.Header.Set("Content-Type", "application/json")
	rec := do(mux, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("login status = %d, body %s", rec.Code, rec.Body.String())
	}
	return rec
}

func cookieByName(t *testing.T, rec *httptest.ResponseRecorder, name string) *http.Cookie {
	t.Helper()
	for _, cookie := range rec.Result().Cookies() {
		if cookie.Name == name {
			return cookie
		}
	}
	t.Fatalf("cookie %q not set", name)
	return nil
}

func TestRegisterEndpoint_ExcludesCredentialFields(t *testing.T) {
	mux, _ := newTestMux(t)

	rec := do(mux, registerRequest(t, janeForm()))
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}

	body := decodeBody(t, rec)
	if body["success"] != true {
		t.Fatalf("expected success=true, got %v", body["success"])
	}
	data, ok := body["data"].(map[string]any)
	if !ok {
		t.Fatalf("missing data object: %s", rec.Body.String())
	}
	for _, forbidden := range []string{"password", "passwordHash", "refreshToken"} {
		if _, present := data[forbidden]; present {
			t.Fatalf("response data must not carry %q", forbidden)
		}
	}
	if data["userName"] != "janedoe" {
		t.Fatalf("unexpected userName %v", data["userName"])
	}
}

func TestRegisterEndpoint_Validation(t *testing.T) {
	mux, _ := newTestMux(t)

	noAvatar := janeForm()
	noAvatar.withAvatar = false
	if rec := do(mux, registerRequest(t, noAvatar)); rec.Code != http.StatusBadRequest {
		t.Fatalf("missing avatar: status = %d", rec.Code)
	}

	badEmail := janeForm()
	badEmail.email = "not-an-email"
	if rec := do(mux, registerRequest(t, badEmail)); rec.Code != http.StatusBadRequest {
		t.Fatalf("bad email: status = %d", rec.Code)
	}

	weakPassword := janeForm()
	weakPassword.password = "weak"
	if rec := do(mux, registerRequest(t, weakPassword)); rec.Code != http.StatusBadRequest {
		t.Fatalf("weak password: status = %d", rec.Code)
	}
}

func TestRegisterEndpoint_DuplicateConflict(t *testing.T) {
	mux, _ := newTestMux(t)

	if rec := do(mux, registerRequest(t, janeForm())); rec.Code != http.StatusCreated {
		t.Fatalf("first register: status = %d", rec.Code)
	}

	rec := do(mux, registerRequest(t, janeForm()))
	if rec.Code != http.StatusConflict {
		t.Fatalf("duplicate register: status = %d, body %s", rec.Code, rec.Body.String())
	}
	if body := decodeBody(t, rec); body["success"] != false {
		t.Fatalf("expected success=false, got %v", body["success"])
	}
}

func TestLoginEndpoint_SetsSecureCookies(t *testing.T) {
	mux, _ := newTestMux(t)
	do(mux, registerRequest(t, janeForm()))

	rec := loginJane(t, mux)

	for _, name := range []string{"accessToken", "refreshToken"} {
		cookie := cookieByName(t, rec, name)
		if cookie.Value == "" {
			t.Fatalf("cookie %q is empty", name)
		}
		if !cookie.HttpOnly || !cookie.Secure {
			t.Fatalf("cookie %q must be HttpOnly and Secure", name)
		}
	}

	body := decodeBody(t, rec)
	data := body["data"].(map[string]any)
	if data["accessToken"] == "" || data["refreshToken"] == "" {
		t.Fatalf("tokens missing from body: %s", rec.Body.String())
	}
	userView := data["user"].(map[string]any)
	if _, present := userView["password"]; present {
		t.Fatalf("login response user must not carry password")
	}
}

func TestLoginEndpoint_WrongPassword(t *testing.T) {
	mux, _ := newTestMux(t)
	do(mux, registerRequest(t, janeForm()))

	req := httptest.NewRequest(http.MethodPost, "/users/login",
		strings.NewReader(`{"userName":"janedoe","password":"WrongPass1!"}`))
	req.Header.Set("Content-Type", "application/json")
	rec := do(mux, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	if len(rec.Result().Cookies()) != 0 {
		t.Fatalf("failed login must not set cookies")
	}
}

func TestRefreshEndpoint_CookieRotation(t *testing.T) {
	mux, _ := newTestMux(t)
	do(mux, registerRequest(t, janeForm()))

	loginRec := loginJane(t, mux)
	oldRefresh := cookieByName(t, loginRec, "refreshToken")

	req := httptest.NewRequest(http.MethodPost, "/users/refresh-token", nil)
	req.AddCookie(oldRefresh)
	rec := do(mux, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("refresh status = %d, body %s", rec.Code, rec.Body.String())
	}
	newRefresh := cookieByName(t, rec, "refreshToken")
	if newRefresh.Value == oldRefresh.Value {
		t.Fatalf("refresh must rotate the refresh token")
	}

	// Presenting the superseded cookie again is reuse.
	replay := httptest.NewRequest(http.MethodPost, "/users/refresh-token", nil)
	replay.AddCookie(oldRefresh)
	if rec := do(mux, replay); rec.Code != http.StatusUnauthorized {
		t.Fatalf("replayed refresh: status = %d", rec.Code)
	}
}

func TestRefreshEndpoint_MissingToken(t *testing.T) {
	mux, _ := newTestMux(t)

	req := httptest.NewRequest(http.MethodPost, "/users/refresh-token", strings.NewReader(`{}`))
	req.Header.Set("Content-Type", "application/json")
	if rec := do(mux, req); rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestCurrentUser_RequiresAccessToken(t *testing.T) {
	mux, _ := newTestMux(t)
	do(mux, registerRequest(t, janeForm()))

	if rec := do(mux, httptest.NewRequest(http.MethodGet, "/users/current-user", nil)); rec.Code != http.StatusUnauthorized {
		t.Fatalf("anonymous request: status = %d", rec.Code)
	}

	loginRec := loginJane(t, mux)
	access := cookieByName(t, loginRec, "accessToken")

	req := httptest.NewRequest(http.MethodGet, "/users/current-user", nil)
	req.Header.Set("Authorization", "Bearer "+access.Value)
	rec := do(mux, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("authenticated request: status = %d, body %s", rec.Code, rec.Body.String())
	}

	data := decodeBody(t, rec)["data"].(map[string]any)
	if data["userName"] != "janedoe" {
		t.Fatalf("unexpected current user: %v", data)
	}
}

func TestLogoutEndpoint_InvalidatesSession(t *testing.T) {
	mux, store := newTestMux(t)
	do(mux, registerRequest(t, janeForm()))

	loginRec := loginJane(t, mux)
	access := cookieByName(t, loginRec, "accessToken")
	refresh := cookieByName(t, loginRec, "refreshToken")

	req := httptest.NewRequest(http.MethodPost, "/users/logout", nil)
	req.Header.Set("Authorization", "Bearer "+access.Value)
	rec := do(mux, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("logout status = %d, body %s", rec.Code, rec.Body.String())
	}

	for _, cookie := range rec.Result().Cookies() {
		if cookie.MaxAge >= 0 && cookie.Value != "" {
			t.Fatalf("logout must expire cookie %q", cookie.Name)
		}
	}
	for _, u := range store.users {
		if u.RefreshToken != nil {
			t.Fatalf("stored refresh token survived logout")
		}
	}

	replay := httptest.NewRequest(http.MethodPost, "/users/refresh-token", nil)
	replay.AddCookie(refresh)
	if rec := do(mux, replay); rec.Code != http.StatusUnauthorized {
		t.Fatalf("refresh after logout: status = %d", rec.Code)
	}
}

func TestRefreshEndpoint_BodyToken(t *testing.T) {
	mux, _ := newTestMux(t)
	do(mux, registerRequest(t, janeForm()))

	loginRec := loginJane(t, mux)
	data := decodeBody(t, loginRec)["data"].(map[string]any)
	refreshToken, _ := data["refreshToken"].(string)
	if refreshToken == "" {
		t.Fatalf("login body missing refreshToken")
	}

	payload, err := json.Marshal(map[string]string{"refreshToken": refreshToken})
	if err != nil {
		t.Fatalf("marshal refresh payload: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, "/users/refresh-token", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	rec := do(mux, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("refresh via body: status = %d, body %s", rec.Code, rec.Body.String())
	}
}
