package user_test

import (
	"context"
	"strings"
	"testing"

	"github.com/pkg/errors"

	"github.com/newedu/guardian/core"
	"github.com/newedu/guardian/core/user"
	otpsvc "github.com/newedu/guardian/services/otp"
	smssvc "github.com/newedu/guardian/services/sms"
	inmemdb "github.com/newedu/guardian/storage/database/inmem"
	testutil "github.com/newedu/guardian/tests"
)

const testPassword = "G0od#Pa55word"

func setup(t *testing.T) (*user.Service, user.Repository) {
	t.Helper()
	testutil.InitValidators()

	conf := core.NewConfig()
	conf.TestMode = true

	db := inmemdb.NewDB()
	repo := inmemdb.NewUserRepository(db)
	svc := user.NewService(db, repo, smssvc.NewConsoleServiceMock(conf), otpsvc.NewInMemStore(), conf)
	return svc, repo
}

func newStudent(phone, uname, schoolID string) user.NewStudent {
	return user.NewStudent{
		NewUser: user.NewUser{
			PhoneNumber:     phone,
			Username:        uname,
			Password:        testPassword,
			PasswordConfirm: testPassword,
		},
		FirstName: "Aziz",
		LastName:  "Karimov",
		SchoolID:  schoolID,
	}
}

func newParent(phone, uname string) user.NewParent {
	return user.NewParent{
		NewUser: user.NewUser{
			PhoneNumber:     phone,
			Username:        uname,
			Password:        testPassword,
			PasswordConfirm: testPassword,
		},
		FirstName: "Karim",
		LastName:  "Karimov",
	}
}

func TestService_RegisterStudent(t *testing.T) {
	svc, _ := setup(t)
	ctx := context.Background()

	usr, err := svc.RegisterStudent(ctx, newStudent("+998901112233", "aziz", "school-1"))
	if err != nil {
		t.Fatalf("RegisterStudent() failed: %v", err)
	}
	if usr.Role.Name != user.RoleStudent || usr.Role.SchoolID.String != "school-1" {
		t.Errorf("RegisterStudent() role = %+v", usr.Role)
	}

	prof, err := svc.StudentProfile(ctx, usr.ID)
	if err != nil {
		t.Fatalf("StudentProfile() failed: %v", err)
	}
	if prof.FirstName != "Aziz" || prof.SchoolID != "school-1" {
		t.Errorf("StudentProfile() = %+v", prof)
	}

	// same phone, same role
	_, err = svc.RegisterStudent(ctx, newStudent("+998901112233", "aziz2", "school-1"))
	if errors.Cause(err) != user.ErrPhoneExists {
		t.Errorf("RegisterStudent() error = %v, want %v", err, user.ErrPhoneExists)
	}

	// same username across roles
	_, err = svc.RegisterParent(ctx, newParent("+998909998877", "aziz"))
	if errors.Cause(err) != user.ErrUsernameExists {
		t.Errorf("RegisterParent() error = %v, want %v", err, user.ErrUsernameExists)
	}

	// same phone under a different role is a distinct account
	if _, err = svc.RegisterParent(ctx, newParent("+998901112233", "karim")); err != nil {
		t.Errorf("RegisterParent() with student's phone failed: %v", err)
	}
}

func TestService_RegisterStudent_parentLink(t *testing.T) {
	svc, _ := setup(t)
	ctx := context.Background()

	father, err := svc.RegisterParent(ctx, newParent("+998909998877", "karim"))
	if err != nil {
		t.Fatalf("RegisterParent() failed: %v", err)
	}

	ns := newStudent("+998901112233", "aziz", "school-1")
	ns.FatherPhone = father.PhoneNumber
	child, err := svc.RegisterStudent(ctx, ns)
	if err != nil {
		t.Fatalf("RegisterStudent() failed: %v", err)
	}

	children, err := svc.ChildrenOf(ctx, father.ID)
	if err != nil {
		t.Fatalf("ChildrenOf() failed: %v", err)
	}
	if len(children) != 1 || children[0].ID != child.ID {
		t.Errorf("ChildrenOf() = %+v, want only %s", children, child.ID)
	}

	ok, err := svc.IsParentOf(ctx, father.ID, child.ID)
	if err != nil {
		t.Fatalf("IsParentOf() failed: %v", err)
	}
	if !ok {
		t.Error("IsParentOf() = false for a linked child")
	}
	if ok, _ = svc.IsParentOf(ctx, child.ID, father.ID); ok {
		t.Error("IsParentOf() = true for reversed arguments")
	}

	// a dangling parent phone rejects the registration
	ns2 := newStudent("+998905554433", "malika", "school-1")
	ns2.MotherPhone = "+998900000000"
	_, err = svc.RegisterStudent(ctx, ns2)
	var vErr *core.ValidationError
	if !errors.As(err, &vErr) {
		t.Errorf("RegisterStudent() error = %v, want a validation error", err)
	}
}

func TestService_Authenticate(t *testing.T) {
	svc, _ := setup(t)
	ctx := context.Background()

	if _, err := svc.RegisterStudent(ctx, newStudent("+998901112233", "aziz", "school-1")); err != nil {
		t.Fatalf("RegisterStudent() failed: %v", err)
	}

	tests := []struct {
		name    string
		phone   string
		pwd     string
		role    string
		wantErr error
	}{
		{name: "ok", phone: "+998901112233", pwd: testPassword, role: user.RoleStudent},
		{name: "wrong password", phone: "+998901112233", pwd: "nope", role: user.RoleStudent, wantErr: user.ErrAuthenticationFailed},
		{name: "wrong role", phone: "+998901112233", pwd: testPassword, role: user.RoleParent, wantErr: user.ErrAuthenticationFailed},
		{name: "unknown phone", phone: "+998900000000", pwd: testPassword, role: user.RoleStudent, wantErr: user.ErrAuthenticationFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			usr, err := svc.Authenticate(ctx, tt.phone, tt.pwd, tt.role)
			if errors.Cause(err) != tt.wantErr {
				t.Fatalf("Authenticate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr == nil && usr.LastLogin.IsZero() {
				t.Error("Authenticate() did not stamp last login")
			}
		})
	}
}

func TestService_PhoneExists(t *testing.T) {
	svc, _ := setup(t)
	ctx := context.Background()

	if _, err := svc.RegisterStudent(ctx, newStudent("+998901112233", "aziz", "school-1")); err != nil {
		t.Fatalf("RegisterStudent() failed: %v", err)
	}

	ok, err := svc.PhoneExists(ctx, "+998901112233", user.RoleStudent)
	if err != nil || !ok {
		t.Errorf("PhoneExists() = %v, %v; want true", ok, err)
	}
	ok, err = svc.PhoneExists(ctx, "+998901112233", user.RoleParent)
	if err != nil || ok {
		t.Errorf("PhoneExists() = %v, %v; want false for another role", ok, err)
	}
}

func TestService_Preferences(t *testing.T) {
	svc, repo := setup(t)
	ctx := context.Background()

	usr := testutil.CreateUser(t, repo, "+998901112233", "aziz", "", user.RoleStudent, "")

	// defaults before any write
	pref, err := svc.Preferences(ctx, usr.ID)
	if err != nil {
		t.Fatalf("Preferences() failed: %v", err)
	}
	if pref.UserID != usr.ID || pref.Language.Valid || pref.Theme.Valid {
		t.Errorf("Preferences() defaults = %+v", pref)
	}

	lang, theme := "uz", "dark"
	pref, err = svc.SetPreferences(ctx, usr.ID, user.PreferencePatch{Language: &lang, Theme: &theme})
	if err != nil {
		t.Fatalf("SetPreferences() failed: %v", err)
	}
	if pref.Language.String != "uz" || pref.Theme.String != "dark" {
		t.Errorf("SetPreferences() = %+v", pref)
	}

	// a later patch leaves untouched fields alone
	off := false
	pref, err = svc.SetPreferences(ctx, usr.ID, user.PreferencePatch{NotificationsEnabled: &off})
	if err != nil {
		t.Fatalf("SetPreferences() failed: %v", err)
	}
	if pref.Language.String != "uz" || pref.NotificationsEnabled.Bool {
		t.Errorf("SetPreferences() patch = %+v", pref)
	}
}

func TestService_PhoneVerification(t *testing.T) {
	svc, _ := setup(t)
	ctx := context.Background()
	phone := "+998901112233"

	smssvc.ClearSentMessages()
	if err := svc.StartPhoneVerification(ctx, phone); err != nil {
		t.Fatalf("StartPhoneVerification() failed: %v", err)
	}
	if len(smssvc.SentMessages) != 1 {
		t.Fatalf("StartPhoneVerification() sent %d messages, want 1", len(smssvc.SentMessages))
	}
	msg := smssvc.SentMessages[0]
	if msg.To != phone {
		t.Errorf("StartPhoneVerification() sent to %s, want %s", msg.To, phone)
	}
	code := msg.Body[strings.LastIndex(msg.Body, " ")+1:]
	if len(code) != 6 {
		t.Fatalf("StartPhoneVerification() code = %q, want 6 digits", code)
	}

	ok, err := svc.ConfirmPhoneVerification(ctx, phone, "000000")
	if err != nil {
		t.Fatalf("ConfirmPhoneVerification() failed: %v", err)
	}
	if ok {
		t.Error("ConfirmPhoneVerification() accepted a wrong code")
	}

	ok, err = svc.ConfirmPhoneVerification(ctx, phone, code)
	if err != nil {
		t.Fatalf("ConfirmPhoneVerification() failed: %v", err)
	}
	if !ok {
		t.Error("ConfirmPhoneVerification() rejected the delivered code")
	}

	// the code is single-use
	ok, err = svc.ConfirmPhoneVerification(ctx, phone, code)
	if err != nil {
		t.Fatalf("ConfirmPhoneVerification() failed: %v", err)
	}
	if ok {
		t.Error("ConfirmPhoneVerification() accepted a consumed code")
	}
}

func TestService_Query(t *testing.T) {
	svc, repo := setup(t)
	ctx := context.Background()

	testutil.CreateUser(t, repo, "+998901112233", "aziz", "", user.RoleStudent, "school-1")
	testutil.CreateUser(t, repo, "+998905554433", "malika", "", user.RoleStudent, "school-2")
	testutil.CreateUser(t, repo, "+998909998877", "karim", "", user.RoleParent, "")

	tests := []struct {
		name   string
		filter user.QueryFilter
		want   int
	}{
		{name: "all", want: 3},
		{name: "students", filter: user.QueryFilter{RoleName: user.RoleStudent}, want: 2},
		{name: "by school", filter: user.QueryFilter{SchoolID: "school-2"}, want: 1},
		{name: "search by username", filter: user.QueryFilter{Search: "MALIKA"}, want: 1},
		{name: "search by phone", filter: user.QueryFilter{Search: "+998909998877"}, want: 1},
		{name: "no match", filter: user.QueryFilter{Search: "nobody"}, want: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			usrs, err := svc.Query(ctx, tt.filter)
			if err != nil {
				t.Fatalf("Query() failed: %v", err)
			}
			if len(usrs) != tt.want {
				t.Errorf("Query() returned %d users, want %d", len(usrs), tt.want)
			}
		})
	}
}

func TestService_Delete(t *testing.T) {
	svc, repo := setup(t)
	ctx := context.Background()

	usr := testutil.CreateUser(t, repo, "+998901112233", "aziz", "", user.RoleStudent, "")
	keep := testutil.CreateUser(t, repo, "+998905554433", "malika", "", user.RoleStudent, "")

	if err := svc.Delete(ctx, usr.ID); err != nil {
		t.Fatalf("Delete() failed: %v", err)
	}
	if _, err := svc.GetByID(ctx, usr.ID); errors.Cause(err) != user.ErrNotFound {
		t.Errorf("GetByID() error = %v, want %v", err, user.ErrNotFound)
	}
	if _, err := svc.GetByID(ctx, keep.ID); err != nil {
		t.Errorf("GetByID() removed an unrelated user: %v", err)
	}
}
