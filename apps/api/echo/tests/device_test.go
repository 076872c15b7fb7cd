package tests

import (
	"net/http"
	"testing"

	"github.com/newedu/guardian/core/device"
	"github.com/newedu/guardian/core/user"
	testutil "github.com/newedu/guardian/tests"
)

func Test_deviceApi_lifecycle(t *testing.T) {
	student := testutil.CreateUser(t, usrRepo, "+998971000001", "devapi", testPassword, user.RoleStudent, "sch-dev-1")
	teacher := testutil.CreateUser(t, usrRepo, "+998971000002", "devapit", testPassword, user.RoleTeacher, "sch-dev-1")
	token := getToken(t, student)

	body := marshalObj(t, device.NewDevice{
		Brand:     "Samsung",
		Model:     "Galaxy A54",
		OSName:    "Android",
		OSVersion: "14",
	})

	// only students and parents manage devices
	rec := do(newAuthRequest(http.MethodPost, "/v1/devices", getToken(t, teacher), body))
	if rec.Code != http.StatusForbidden {
		t.Errorf("register as teacher = %d, want %d", rec.Code, http.StatusForbidden)
	}

	rec = do(newAuthRequest(http.MethodPost, "/v1/devices", token, body))
	if rec.Code != http.StatusCreated {
		t.Fatalf("register = %d, want %d; body: %s", rec.Code, http.StatusCreated, rec.Body.String())
	}
	var ud device.UserDevice
	decodeObj(t, rec.Body, &ud)
	if ud.UserID != student.ID || !ud.IsActive {
		t.Fatalf("registered device = %+v", ud)
	}

	rec = do(newAuthRequest(http.MethodGet, "/v1/devices", token))
	if rec.Code != http.StatusOK {
		t.Fatalf("mine = %d; body: %s", rec.Code, rec.Body.String())
	}
	var mine []device.UserDevice
	decodeObj(t, rec.Body, &mine)
	if len(mine) != 1 || mine[0].ID != ud.ID {
		t.Errorf("mine = %+v", mine)
	}

	// setup starts blank and fills up patch by patch
	rec = do(newAuthRequest(http.MethodGet, "/v1/devices/"+ud.ID+"/setup", token))
	if rec.Code != http.StatusOK {
		t.Fatalf("setup = %d; body: %s", rec.Code, rec.Body.String())
	}
	var st device.Setup
	decodeObj(t, rec.Body, &st)
	if st.Complete() {
		t.Error("fresh setup reports complete")
	}

	yes := true
	rec = do(newAuthRequest(http.MethodPatch, "/v1/devices/"+ud.ID+"/setup", token,
		marshalObj(t, device.SetupPatch{LauncherSet: &yes, AdminGranted: &yes, Accessibility: &yes, Overlay: &yes})))
	if rec.Code != http.StatusOK {
		t.Fatalf("patch setup = %d; body: %s", rec.Code, rec.Body.String())
	}
	decodeObj(t, rec.Body, &st)
	if !st.Complete() {
		t.Errorf("patched setup = %+v", st)
	}

	// devices are invisible across users
	other := testutil.CreateUser(t, usrRepo, "+998971000003", "devapio", testPassword, user.RoleStudent, "sch-dev-2")
	rec = do(newAuthRequest(http.MethodGet, "/v1/devices/"+ud.ID, getToken(t, other)))
	if rec.Code != http.StatusNotFound {
		t.Errorf("retrieve foreign device = %d, want %d", rec.Code, http.StatusNotFound)
	}

	rec = do(newAuthRequest(http.MethodPost, "/v1/devices/"+ud.ID+"/deactivate", token))
	if rec.Code != http.StatusOK {
		t.Fatalf("deactivate = %d; body: %s", rec.Code, rec.Body.String())
	}
	decodeObj(t, rec.Body, &ud)
	if ud.IsActive {
		t.Error("deactivated device is still active")
	}
}
