package agentruntime

import (
	"reflect"
	"testing"
)

func TestBuildArgvAutoSuppressesToolFlags(t *testing.T) {
	got := buildArgv("claude", ModeAuto, []Permission{PermissionWrite, PermissionExecute}, "", "new-id")
	want := []string{"claude", "--verbose", "--dangerously-skip-permissions", "--session-id", "new-id"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestBuildArgvPlanAppendsPlanAndTools(t *testing.T) {
	got := buildArgv("claude", ModePlan, []Permission{PermissionWrite}, "", "new-id")
	want := []string{"claude", "--verbose", "--plan", "--allowedTools", "Write,Edit", "--session-id", "new-id"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestBuildArgvRegularWithPermissions(t *testing.T) {
	got := buildArgv("claude", ModeRegular, []Permission{PermissionWrite, PermissionExecute}, "", "new-id")
	want := []string{"claude", "--verbose", "--allowedTools", "Write,Edit,Bash", "--session-id", "new-id"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestBuildArgvNoPermissionsOmitsAllowedTools(t *testing.T) {
	got := buildArgv("claude", ModeRegular, nil, "", "new-id")
	want := []string{"claude", "--verbose", "--session-id", "new-id"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestBuildArgvResumeUsesResumeFlag(t *testing.T) {
	got := buildArgv("claude", ModeRegular, nil, "prior-token", "new-id")
	want := []string{"claude", "--verbose", "--resume", "prior-token"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}
