package authz

import (
	"errors"
	"testing"
)

func TestTemplates(t *testing.T) {
	for _, name := range TemplateNames() {
		perms, err := Template(name, ResourceFile)
		if err != nil {
			t.Fatalf("template %s: %v", name, err)
		}
		if len(perms) == 0 {
			t.Fatalf("template %s returned no permissions", name)
		}
		for _, p := range perms {
			if p.Resource != ResourceFile {
				t.Fatalf("template %s targets %s", name, p.Resource)
			}
		}
	}

	readonly, _ := Template("readonly", ResourceFolder)
	if len(readonly) != 1 || !readonly[0].HasAction(ActionRead) || readonly[0].HasAction(ActionUpdate) {
		t.Fatalf("readonly = %+v", readonly)
	}

	private, _ := Template("private", ResourceFile)
	if private[0].Scope != ScopeOwn {
		t.Fatalf("private template should be owner scoped")
	}

	if _, err := Template("open-bar", ResourceFile); !errors.Is(err, ErrUnknownTemplate) {
		t.Fatalf("expected ErrUnknownTemplate, got %v", err)
	}
}
