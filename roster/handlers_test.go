package roster

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/bluesky-social/roster/users"
	"github.com/bluesky-social/roster/util/cliutil"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T) (*Server, *users.DBStore, func()) {
	t.Helper()
	db, err := cliutil.SetupDatabase("sqlite://:memory:", 40)
	if err != nil {
		t.Fatal(err)
	}
	dbs := users.NewDBStore(db)
	if err := dbs.InitSchema(context.Background()); err != nil {
		t.Fatal(err)
	}
	srv := &Server{
		db:    db,
		store: users.NewCachedStore(dbs),
		log:   slog.Default(),
	}
	return srv, dbs, func() {
		sqlDB, err := db.DB()
		if err != nil {
			t.Fatal(err)
		}
		if err := sqlDB.Close(); err != nil {
			t.Fatal(err)
		}
	}
}

func jsonReq(method, body string) *http.Request {
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, "/", rd)
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	return req
}

func userCtx(e *echo.Echo, req *http.Request, rec *httptest.ResponseRecorder, id string) echo.Context {
	c := e.NewContext(req, rec)
	c.SetPath("/users/:id")
	c.SetParamNames("id")
	c.SetParamValues(id)
	return c
}

func TestHandleHealthCheck(t *testing.T) {
	srv, _, cleanup := newTestServer(t)
	defer cleanup()

	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(jsonReq(http.MethodGet, ""), rec)

	require.NoError(t, srv.HandleHealthCheck(c))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"status":"ok"`)
	require.Contains(t, rec.Body.String(), `"daemon":"roster"`)
}

func TestHandleCreateUser(t *testing.T) {
	assert := assert.New(t)
	srv, _, cleanup := newTestServer(t)
	defer cleanup()
	e := echo.New()

	rec := httptest.NewRecorder()
	c := e.NewContext(jsonReq(http.MethodPost, `{"name":"Ann","email":"ann@example.com","age":30}`), rec)
	require.NoError(t, srv.HandleCreateUser(c))
	require.Equal(t, http.StatusCreated, rec.Code)

	var created users.User
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	assert.NotEqual(uuid.Nil, created.ID)
	assert.Equal("Ann", created.Name)
	assert.Equal("ann@example.com", created.Email)
	require.NotNil(t, created.Age)
	assert.Equal(int16(30), *created.Age)

	// age can be omitted entirely
	rec = httptest.NewRecorder()
	c = e.NewContext(jsonReq(http.MethodPost, `{"name":"Bob","email":"bob@example.com"}`), rec)
	require.NoError(t, srv.HandleCreateUser(c))
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Contains(rec.Body.String(), `"age":null`)

	// reusing an email is a conflict
	rec = httptest.NewRecorder()
	c = e.NewContext(jsonReq(http.MethodPost, `{"name":"Imposter","email":"ann@example.com"}`), rec)
	require.NoError(t, srv.HandleCreateUser(c))
	assert.Equal(http.StatusConflict, rec.Code)
	assert.Contains(rec.Body.String(), "EmailTaken")
}

func TestHandleCreateUserValidation(t *testing.T) {
	assert := assert.New(t)
	srv, _, cleanup := newTestServer(t)
	defer cleanup()
	e := echo.New()

	for _, body := range []string{
		`{"email":"ann@example.com"}`,
		`{"name":"","email":"ann@example.com"}`,
		`{"name":"Ann"}`,
		`{"name":"Ann","email":""}`,
		`{"name":"Ann","email":"not-an-email"}`,
		`{"name":"Ann","email":"ann@example.com","age":-1}`,
		`{"name":`,
	} {
		rec := httptest.NewRecorder()
		c := e.NewContext(jsonReq(http.MethodPost, body), rec)
		require.NoError(t, srv.HandleCreateUser(c))
		assert.Equal(http.StatusBadRequest, rec.Code, "body: %s", body)
	}

	// nothing slipped through
	all, err := srv.store.ListAll(context.Background())
	require.NoError(t, err)
	assert.Empty(all)
}

func TestHandleGetUser(t *testing.T) {
	assert := assert.New(t)
	srv, _, cleanup := newTestServer(t)
	defer cleanup()
	e := echo.New()

	u, err := srv.store.Create(context.Background(), users.CreateUserParams{Name: "Ann", Email: "ann@example.com"})
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	c := userCtx(e, jsonReq(http.MethodGet, ""), rec, u.ID.String())
	require.NoError(t, srv.HandleGetUser(c))
	require.Equal(t, http.StatusOK, rec.Code)

	var got users.User
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(u.ID, got.ID)
	assert.Equal("Ann", got.Name)

	// malformed id
	rec = httptest.NewRecorder()
	c = userCtx(e, jsonReq(http.MethodGet, ""), rec, "not-a-uuid")
	require.NoError(t, srv.HandleGetUser(c))
	assert.Equal(http.StatusBadRequest, rec.Code)
	assert.Contains(rec.Body.String(), "InvalidUserId")

	// unknown id
	rec = httptest.NewRecorder()
	c = userCtx(e, jsonReq(http.MethodGet, ""), rec, uuid.NewString())
	require.NoError(t, srv.HandleGetUser(c))
	assert.Equal(http.StatusNotFound, rec.Code)
	assert.Contains(rec.Body.String(), "UserNotFound")
}

func TestHandleListUsers(t *testing.T) {
	assert := assert.New(t)
	srv, _, cleanup := newTestServer(t)
	defer cleanup()
	e := echo.New()

	rec := httptest.NewRecorder()
	c := e.NewContext(jsonReq(http.MethodGet, ""), rec)
	require.NoError(t, srv.HandleListUsers(c))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(`[]`, rec.Body.String())

	for _, p := range []users.CreateUserParams{
		{Name: "Bob", Email: "bob@example.com"},
		{Name: "Ann", Email: "ann@example.com"},
	} {
		_, err := srv.store.Create(context.Background(), p)
		require.NoError(t, err)
	}

	rec = httptest.NewRecorder()
	c = e.NewContext(jsonReq(http.MethodGet, ""), rec)
	require.NoError(t, srv.HandleListUsers(c))
	require.Equal(t, http.StatusOK, rec.Code)

	var all []users.User
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &all))
	require.Len(t, all, 2)
	assert.Equal("Ann", all[0].Name)
	assert.Equal("Bob", all[1].Name)
}

func TestHandleUpdateUser(t *testing.T) {
	assert := assert.New(t)
	srv, _, cleanup := newTestServer(t)
	defer cleanup()
	e := echo.New()

	u, err := srv.store.Create(context.Background(), users.CreateUserParams{Name: "Ann", Email: "ann@example.com", Age: agePtr(30)})
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	c := userCtx(e, jsonReq(http.MethodPut, `{"age":31}`), rec, u.ID.String())
	require.NoError(t, srv.HandleUpdateUser(c))
	require.Equal(t, http.StatusOK, rec.Code)

	var got users.User
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal("Ann", got.Name)
	assert.Equal("ann@example.com", got.Email)
	require.NotNil(t, got.Age)
	assert.Equal(int16(31), *got.Age)

	// an empty patch is fine, and changes nothing
	rec = httptest.NewRecorder()
	c = userCtx(e, jsonReq(http.MethodPut, `{}`), rec, u.ID.String())
	require.NoError(t, srv.HandleUpdateUser(c))
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal("Ann", got.Name)
	assert.Equal(int16(31), *got.Age)

	// validation and id parsing behave as for the other endpoints
	rec = httptest.NewRecorder()
	c = userCtx(e, jsonReq(http.MethodPut, `{"age":-2}`), rec, u.ID.String())
	require.NoError(t, srv.HandleUpdateUser(c))
	assert.Equal(http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	c = userCtx(e, jsonReq(http.MethodPut, `{"name":"X"}`), rec, "not-a-uuid")
	require.NoError(t, srv.HandleUpdateUser(c))
	assert.Equal(http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	c = userCtx(e, jsonReq(http.MethodPut, `{"name":"X"}`), rec, uuid.NewString())
	require.NoError(t, srv.HandleUpdateUser(c))
	assert.Equal(http.StatusNotFound, rec.Code)

	// email conflicts surface as 409
	v, err := srv.store.Create(context.Background(), users.CreateUserParams{Name: "Bob", Email: "bob@example.com"})
	require.NoError(t, err)
	rec = httptest.NewRecorder()
	c = userCtx(e, jsonReq(http.MethodPut, `{"email":"ann@example.com"}`), rec, v.ID.String())
	require.NoError(t, srv.HandleUpdateUser(c))
	assert.Equal(http.StatusConflict, rec.Code)
	assert.Contains(rec.Body.String(), "EmailTaken")
}

func TestHandleDeleteUser(t *testing.T) {
	assert := assert.New(t)
	srv, _, cleanup := newTestServer(t)
	defer cleanup()
	e := echo.New()

	u, err := srv.store.Create(context.Background(), users.CreateUserParams{Name: "Ann", Email: "ann@example.com"})
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	c := userCtx(e, jsonReq(http.MethodDelete, ""), rec, u.ID.String())
	require.NoError(t, srv.HandleDeleteUser(c))
	assert.Equal(http.StatusNoContent, rec.Code)
	assert.Empty(rec.Body.String())

	// deleting again is a 404
	rec = httptest.NewRecorder()
	c = userCtx(e, jsonReq(http.MethodDelete, ""), rec, u.ID.String())
	require.NoError(t, srv.HandleDeleteUser(c))
	assert.Equal(http.StatusNotFound, rec.Code)
}

func TestHandleRefreshAndInvalidate(t *testing.T) {
	assert := assert.New(t)
	srv, dbs, cleanup := newTestServer(t)
	defer cleanup()
	e := echo.New()
	ctx := context.Background()

	u, err := srv.store.Create(ctx, users.CreateUserParams{Name: "Ann", Email: "ann@example.com"})
	require.NoError(t, err)

	// write directly to the database, behind the cache
	_, err = dbs.Update(ctx, u.ID, users.UpdateUserParams{Name: strPtr("Anna")})
	require.NoError(t, err)

	// the cached value is served until someone reconciles it
	rec := httptest.NewRecorder()
	c := userCtx(e, jsonReq(http.MethodGet, ""), rec, u.ID.String())
	require.NoError(t, srv.HandleGetUser(c))
	assert.Contains(rec.Body.String(), `"name":"Ann"`)

	rec = httptest.NewRecorder()
	c = userCtx(e, jsonReq(http.MethodPost, ""), rec, u.ID.String())
	c.SetPath("/users/:id/refresh")
	require.NoError(t, srv.HandleRefreshUser(c))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(rec.Body.String(), `"name":"Anna"`)

	rec = httptest.NewRecorder()
	c = userCtx(e, jsonReq(http.MethodGet, ""), rec, u.ID.String())
	require.NoError(t, srv.HandleGetUser(c))
	assert.Contains(rec.Body.String(), `"name":"Anna"`)

	// now the row disappears behind the cache
	_, err = dbs.Delete(ctx, u.ID)
	require.NoError(t, err)

	rec = httptest.NewRecorder()
	c = userCtx(e, jsonReq(http.MethodGet, ""), rec, u.ID.String())
	require.NoError(t, srv.HandleGetUser(c))
	assert.Equal(http.StatusOK, rec.Code)

	// a full invalidation clears the ghost
	rec = httptest.NewRecorder()
	c = e.NewContext(jsonReq(http.MethodPost, ""), rec)
	c.SetPath("/cache/invalidate")
	require.NoError(t, srv.HandleInvalidateCache(c))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	c = userCtx(e, jsonReq(http.MethodGet, ""), rec, u.ID.String())
	require.NoError(t, srv.HandleGetUser(c))
	assert.Equal(http.StatusNotFound, rec.Code)

	// refreshing an unknown user is a 404 either way
	rec = httptest.NewRecorder()
	c = userCtx(e, jsonReq(http.MethodPost, ""), rec, u.ID.String())
	c.SetPath("/users/:id/refresh")
	require.NoError(t, srv.HandleRefreshUser(c))
	assert.Equal(http.StatusNotFound, rec.Code)
}

func agePtr(v int16) *int16 {
	return &v
}

func strPtr(s string) *string {
	return &s
}
