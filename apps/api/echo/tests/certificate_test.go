package tests

import (
	"bytes"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/juniordw/rotasi-lms-sub000/core"
	"github.com/juniordw/rotasi-lms-sub000/core/certificate"
	"github.com/juniordw/rotasi-lms-sub000/core/user"
	testutil "github.com/juniordw/rotasi-lms-sub000/tests"
)

// completeCourse completes every lesson of the catalog for its student.
func completeCourse(t *testing.T, env apiEnv, cat testutil.Catalog) certificate.Certificate {
	enr, err := env.Enrollments.GetByLearnerCourse(t.Context(), cat.Student.ID, cat.Course.ID)
	require.NoError(t, err)
	for _, lsn := range cat.Lessons {
		_, _, err = env.Tracker.RecordCompletion(t.Context(), enr.ID, lsn.ID, 5)
		require.NoError(t, err)
	}
	cert, err := env.Certificates.GetByLearnerCourse(t.Context(), cat.Student.ID, cat.Course.ID)
	require.NoError(t, err)
	return cert
}

func Test_certificateApi(t *testing.T) {
	env := setup(t)
	cat := testutil.NewCatalog(t, env.Env, 2, 0)
	testutil.Enroll(t, env.Enrollments, cat.Student.ID, cat.Course.ID)
	outsider := testutil.CreateUser(t, env.Users, "Sari", "sari@rotasi.test", user.RoleStudent)
	studentToken := env.getToken(t, cat.Student)

	generate := []byte(fmt.Sprintf(`{"course_id": %d}`, cat.Course.ID))

	runHTTPTests(t, env, []httpTest{
		{name: "list: auth required", path: "/certificates", wantCode: http.StatusUnauthorized},
		{name: "list: nothing yet", path: "/certificates", token: studentToken, wantCode: http.StatusOK, wantData: []byte(`[]`)},
		{
			name: "generate: course not completed", method: http.MethodPost, path: "/certificates/generate", body: generate,
			token: studentToken, wantCode: http.StatusForbidden, wantData: marchallObj(t, httpErr{Error: "course not completed yet"}),
		},
		{
			name: "generate: not enrolled", method: http.MethodPost, path: "/certificates/generate", body: generate,
			token: env.getToken(t, outsider), wantCode: http.StatusForbidden,
			wantData: marchallObj(t, httpErr{Error: "not enrolled in this course"}),
		},
		{
			name: "generate: missing course", method: http.MethodPost, path: "/certificates/generate", body: []byte(`{}`),
			token: studentToken, wantCode: http.StatusBadRequest,
		},
	})

	cert := completeCourse(t, env, cat)
	require.Equal(t, certificate.StatusIssued, cert.Status)

	runHTTPTests(t, env, []httpTest{
		{
			name: "retrieve: someone else's certificate", path: "/certificates/" + cert.ID, token: env.getToken(t, outsider),
			wantCode: http.StatusForbidden, wantData: marchallObj(t, httpErr{Error: "permission denied"}),
		},
		{
			name: "retrieve: unknown", path: "/certificates/lol", token: studentToken,
			wantCode: http.StatusNotFound, wantData: marchallObj(t, httpErr{Error: "certificate not found"}),
		},
		{name: "list: other students see nothing", path: "/certificates", token: env.getToken(t, outsider), wantCode: http.StatusOK, wantData: []byte(`[]`)},
	})

	t.Run("list", func(t *testing.T) {
		for _, usr := range []user.User{cat.Student, cat.Instructor, cat.Admin} {
			rec := env.serve(httpTest{path: "/certificates?ordering=-issue_date", token: env.getToken(t, usr)})
			require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
			var certs []certificate.Certificate
			unmarshall(t, rec, &certs)
			require.Len(t, certs, 1, usr.Role)
			assert.Equal(t, cert.ID, certs[0].ID)
			assert.Equal(t, "Budi", certs[0].LearnerName)
			assert.Equal(t, "Go Basics", certs[0].CourseTitle)
		}
	})

	t.Run("generate returns the existing certificate", func(t *testing.T) {
		rec := env.serve(httpTest{method: http.MethodPost, path: "/certificates/generate", body: generate, token: studentToken})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var got certificate.Certificate
		unmarshall(t, rec, &got)
		assert.Equal(t, cert.ID, got.ID)
		assert.Equal(t, cert.Serial, got.Serial)
		assert.Equal(t, cert.URL, got.URL)
	})

	t.Run("download", func(t *testing.T) {
		rec := env.serve(httpTest{path: "/certificates/" + cert.ID + "/download", token: studentToken})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		assert.Equal(t, "application/pdf", rec.Header().Get("Content-Type"))
		assert.Equal(t, `attachment; filename="Sertifikat_Go_Basics_Budi.pdf"`, rec.Header().Get("Content-Disposition"))
		assert.True(t, bytes.HasPrefix(rec.Body.Bytes(), []byte("%PDF-")))
	})

	t.Run("verify is public", func(t *testing.T) {
		body := []byte(fmt.Sprintf(`{"certificate_id": %q}`, cert.ID))
		rec := env.serve(httpTest{method: http.MethodPost, path: "/certificates/verify", body: body})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var v map[string]interface{}
		unmarshall(t, rec, &v)
		assert.Equal(t, cert.ID, v["certificateId"])
		assert.Equal(t, "Budi", v["userName"])
		assert.Equal(t, "Go Basics", v["courseTitle"])
		assert.Contains(t, v, "issueDate")
		assert.Nil(t, v["expirationDate"])
	})

	runHTTPTests(t, env, []httpTest{
		{
			name: "verify: unknown", method: http.MethodPost, path: "/certificates/verify", body: []byte(`{"certificate_id": "lol"}`),
			wantCode: http.StatusNotFound, wantData: marchallObj(t, httpErr{Error: "certificate not found"}),
		},
		{
			name: "verify: blank id", method: http.MethodPost, path: "/certificates/verify", body: []byte(`{"certificate_id": "  "}`),
			wantCode: http.StatusBadRequest, wantData: []byte(`{"certificate_id": "this field cannot be blank"}`),
		},
	})
}

func Test_certificateApi_downloadPending(t *testing.T) {
	env := setup(t,
		testutil.WithConfig(func(conf *core.Config) { conf.Certificate.RenderTimeout = 20 * time.Millisecond }),
		func(env *testutil.Env) { env.Renderer = testutil.BlockingRenderer{} },
	)
	cat := testutil.NewCatalog(t, env.Env, 1, 0)
	testutil.Enroll(t, env.Enrollments, cat.Student.ID, cat.Course.ID)

	cert := completeCourse(t, env, cat)
	require.Equal(t, certificate.StatusPending, cert.Status)

	rec := env.serve(httpTest{path: "/certificates/" + cert.ID + "/download", token: env.getToken(t, cat.Student)})
	require.Equal(t, http.StatusConflict, rec.Code, rec.Body.String())
	assert.Equal(t, "5", rec.Header().Get("Retry-After"))
	assert.JSONEq(t, `{"error": "certificate document is still being rendered", "status": "pending"}`, rec.Body.String())
}
