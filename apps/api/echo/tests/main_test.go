package tests

import (
	"bytes"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"os"
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"

	. "github.com/newedu/guardian/apps/api/echo"
	"github.com/newedu/guardian/core"
	"github.com/newedu/guardian/core/activity"
	"github.com/newedu/guardian/core/approval"
	"github.com/newedu/guardian/core/catalog"
	"github.com/newedu/guardian/core/device"
	"github.com/newedu/guardian/core/policy"
	"github.com/newedu/guardian/core/school"
	"github.com/newedu/guardian/core/user"
	emailsvc "github.com/newedu/guardian/services/email"
	logsvc "github.com/newedu/guardian/services/logger"
	otpsvc "github.com/newedu/guardian/services/otp"
	smssvc "github.com/newedu/guardian/services/sms"
	inmemdb "github.com/newedu/guardian/storage/database/inmem"
	testutil "github.com/newedu/guardian/tests"
)

var (
	app     Server
	conf    *core.Config
	usrRepo user.Repository

	usrSvc    *user.Service
	schoolSvc *school.Service
	catSvc    *catalog.Service
	polSvc    *policy.Service
	apprSvc   *approval.Service
	devSvc    *device.Service
	actSvc    *activity.Service

	errMissingToken = httpErr{Error: "missing or malformed jwt"}
)

func TestMain(m *testing.M) {
	testutil.InitValidators()

	conf = core.NewConfig()
	conf.TestMode = true
	conf.Debug = false   // error responses must keep their JSON shape
	conf.AdminEmail = "" // notifications are off in tests

	db := inmemdb.NewDB()
	usrRepo = inmemdb.NewUserRepository(db)
	usrSvc = user.NewService(db, usrRepo, smssvc.NewConsoleServiceMock(conf), otpsvc.NewInMemStore(), conf)
	schoolSvc = school.NewService(db, inmemdb.NewSchoolRepository(db))
	catSvc = catalog.NewService(db, inmemdb.NewCatalogRepository(db))
	devSvc = device.NewService(db, inmemdb.NewDeviceRepository(db))
	actSvc = activity.NewService(inmemdb.NewActivityRepository(db), devSvc, catSvc, usrSvc)
	polSvc = policy.NewService(db, inmemdb.NewPolicyRepository(db), actSvc, schoolSvc, catSvc, conf)
	logger := logsvc.NewRollbarLogger(log.New(io.Discard, "", 0), conf)
	apprSvc = approval.NewService(db, inmemdb.NewApprovalRepository(db), catSvc, polSvc, emailsvc.NewConsoleServiceMock(conf), logger, conf)

	app = NewServer(ServerDeps{
		Conf:   conf,
		Logger: logger,

		UserSvc:     usrSvc,
		SchoolSvc:   schoolSvc,
		CatalogSvc:  catSvc,
		PolicySvc:   polSvc,
		ApprovalSvc: apprSvc,
		DeviceSvc:   devSvc,
		ActivitySvc: actSvc,

		DisableReqLogs: true,
	})

	os.Exit(m.Run())
}

type httpErr struct {
	Error string `json:"error"`
}

func newAuthRequest(method, path, token string, data ...[]byte) *http.Request {
	var body bytes.Buffer
	if len(data) > 0 {
		body.Write(data[0])
	}
	req := httptest.NewRequest(method, path, &body)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req
}

func newRequest(method, path string, data ...[]byte) *http.Request {
	return newAuthRequest(method, path, "", data...)
}

func do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	app.ServeHTTP(rec, req)
	return rec
}

func getToken(t *testing.T, usr user.User) string {
	t.Helper()
	token, err := GenerateToken(conf, GetUserClaims(conf, usr))
	if err != nil {
		t.Fatalf("getToken() failed: %v", err)
	}
	return token
}

func marshalObj(t *testing.T, obj interface{}) []byte {
	t.Helper()
	data, err := json.Marshal(obj)
	if err != nil {
		t.Fatalf("marshalObj() failed: %v", err)
	}
	return data
}

func decodeObj(t *testing.T, body *bytes.Buffer, obj interface{}) {
	t.Helper()
	if err := json.NewDecoder(body).Decode(obj); err != nil {
		t.Fatalf("decodeObj() failed: %v", err)
	}
}

// jsonBytesEqual compares JSON payloads structurally, order-insensitive for arrays.
func jsonBytesEqual(t *testing.T, b1, b2 []byte) (bool, error) {
	var j1, j2 interface{}
	if err := json.Unmarshal(b1, &j1); err != nil {
		return false, err
	}
	if err := json.Unmarshal(b2, &j2); err != nil {
		return false, err
	}
	if reflect.DeepEqual(j1, j2) {
		return true, nil
	}
	if j1 == nil || j2 == nil {
		return false, nil
	}
	return assert.ElementsMatch(t, j1, j2), nil
}
