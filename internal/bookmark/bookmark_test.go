package bookmark

import "testing"

func TestRoleOf(t *testing.T) {
	tests := []struct {
		name string
		node *Node
		want Role
	}{
		{"chromium bar", &Node{ID: "1", Kind: KindFolder, Title: "Bookmarks bar"}, RoleToolbar},
		{"chromium other", &Node{ID: "2", Kind: KindFolder, Title: "Other bookmarks"}, RoleOther},
		{"firefox toolbar", &Node{ID: "toolbar_____", Kind: KindFolder, Title: "Symbolleiste"}, RoleToolbar},
		{"firefox unfiled", &Node{ID: "unfiled_____", Kind: KindFolder}, RoleOther},
		{"title fallback toolbar", &Node{ID: "x", Kind: KindFolder, Title: "Lesezeichenleiste"}, RoleToolbar},
		{"title fallback other", &Node{ID: "y", Kind: KindFolder, Title: "  Weitere Lesezeichen "}, RoleOther},
		{"firefox menu is not synced", &Node{ID: "menu________", Kind: KindFolder, Title: "Bookmarks Menu"}, RoleNone},
		{"bookmark never has a role", &Node{ID: "1", Kind: KindBookmark, Title: "toolbar"}, RoleNone},
		{"nil", nil, RoleNone},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := RoleOf(tt.node); got != tt.want {
				t.Errorf("RoleOf() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestRoleFoldersFirstWins(t *testing.T) {
	first := &Node{ID: "1", Kind: KindFolder, Title: "Bar"}
	second := &Node{ID: "z", Kind: KindFolder, Title: "Toolbar"}
	other := &Node{ID: "2", Kind: KindFolder, Title: "Other"}
	root := NewFolder("root", first, second, other, NewBookmark("loose", "https://example.com"))

	got := RoleFolders(root)
	if len(got) != 2 {
		t.Fatalf("expected 2 roles, got %d", len(got))
	}
	if got[RoleToolbar] != first {
		t.Errorf("toolbar role should belong to the first matching folder")
	}
	if got[RoleOther] != other {
		t.Errorf("other role mismatch")
	}
}

func TestCountAndClone(t *testing.T) {
	root := NewFolder("root",
		NewBookmark("a", "https://a"),
		NewFolder("sub", NewBookmark("b", "https://b"), NewFolder("empty")),
	)

	b, f := Count(root)
	if b != 2 || f != 2 {
		t.Errorf("Count() = (%d, %d), want (2, 2)", b, f)
	}

	clone := Clone(root)
	clone.Children[1].Children[0].Title = "changed"
	if root.Children[1].Children[0].Title != "b" {
		t.Error("Clone() shares children with the original")
	}
}
