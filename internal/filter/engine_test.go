package filter

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"toonbot/internal/model"
)

func include(scope model.FilterScope, v string) model.Filter {
	return model.Filter{Kind: model.FilterInclude, Scope: scope, Value: v}
}

func exclude(scope model.FilterScope, v string) model.Filter {
	return model.Filter{Kind: model.FilterExclude, Scope: scope, Value: v}
}

func TestSetAllows(t *testing.T) {
	tests := []struct {
		name    string
		article Article
		filters []model.Filter
		want    bool
		wantErr bool
	}{
		{
			name:    "no filters",
			article: Article{Title: "anything"},
			want:    true,
		},
		{
			name:    "include hit is case insensitive",
			article: Article{Title: "ARSENAL sign new striker"},
			filters: []model.Filter{include(model.ScopeAll, "arsenal")},
			want:    true,
		},
		{
			name:    "include miss",
			article: Article{Title: "Chelsea sack manager"},
			filters: []model.Filter{include(model.ScopeAll, "arsenal")},
			want:    false,
		},
		{
			name:    "exclude wins over include",
			article: Article{Title: "Arsenal rumour roundup"},
			filters: []model.Filter{include(model.ScopeAll, "arsenal"), exclude(model.ScopeAll, "rumour")},
			want:    false,
		},
		{
			name:    "includes are alternatives",
			article: Article{Title: "Tottenham draw"},
			filters: []model.Filter{include(model.ScopeAll, "arsenal"), include(model.ScopeAll, "tottenham")},
			want:    true,
		},
		{
			name:    "regex include",
			article: Article{Title: "Matchday 12 preview"},
			filters: []model.Filter{{Kind: model.FilterIncludeRe, Scope: model.ScopeTitle, Value: `matchday \d+`}},
			want:    true,
		},
		{
			name:    "regex exclude",
			article: Article{Title: "Live blog: transfer deadline day"},
			filters: []model.Filter{{Kind: model.FilterExcludeRe, Scope: model.ScopeAll, Value: "^live blog"}},
			want:    false,
		},
		{
			name:    "invalid regex fails the set",
			article: Article{Title: "anything"},
			filters: []model.Filter{{Kind: model.FilterIncludeRe, Scope: model.ScopeAll, Value: "[broken"}},
			wantErr: true,
		},
		{
			name:    "keywords match substrings",
			article: Article{Title: "Arsenalfan TV reacts"},
			filters: []model.Filter{include(model.ScopeTitle, "arsenal")},
			want:    true,
		},
		{
			name:    "title scope ignores summary",
			article: Article{Title: "Weekend recap", Summary: "Arsenal won"},
			filters: []model.Filter{include(model.ScopeTitle, "arsenal")},
			want:    false,
		},
		{
			name:    "content scope ignores title",
			article: Article{Title: "Arsenal", Summary: "Weekend recap"},
			filters: []model.Filter{include(model.ScopeContent, "arsenal")},
			want:    false,
		},
		{
			name:    "content exclude does not look at title",
			article: Article{Title: "Sponsored: boots", Summary: "Arsenal kit launch"},
			filters: []model.Filter{exclude(model.ScopeContent, "sponsored")},
			want:    true,
		},
		{
			name:    "non latin text",
			article: Article{Title: "Зенит выиграл"},
			filters: []model.Filter{include(model.ScopeAll, "зенит")},
			want:    true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			set, err := Compile(tt.filters)
			if diff := cmp.Diff(tt.wantErr, err != nil); diff != "" {
				t.Fatalf("Compile() error mismatch (-want +got):\n%s\nerr: %v", diff, err)
			}
			if err != nil {
				return
			}
			got := set.Allows(tt.article)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("Allows() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestCompileRejectsUnknownKind(t *testing.T) {
	_, err := Compile([]model.Filter{{ID: 3, Kind: "maybe", Value: "x"}})
	if err == nil {
		t.Fatal("expected error for unknown filter kind")
	}
}

func TestNilSetAllows(t *testing.T) {
	var s *Set
	if !s.Allows(Article{Title: "x"}) {
		t.Error("nil set should allow every article")
	}
}

func TestArticleFrom(t *testing.T) {
	ev := model.Event{Kind: model.KindNewArticle, Payload: model.ArticlePayload{Title: "T", Summary: "S", Link: "L"}}
	got, ok := ArticleFrom(ev)
	if !ok {
		t.Fatal("expected article payload")
	}
	if diff := cmp.Diff(Article{Title: "T", Summary: "S"}, got); diff != "" {
		t.Errorf("ArticleFrom() mismatch (-want +got):\n%s", diff)
	}

	if _, ok := ArticleFrom(model.Event{Kind: model.KindGoal, Payload: model.IncidentPayload{}}); ok {
		t.Error("expected no article for a goal event")
	}
}

func TestValidateRegex(t *testing.T) {
	tests := []struct {
		pattern string
		wantErr bool
	}{
		{pattern: "arsenal", wantErr: false},
		{pattern: "arsenal|spurs", wantErr: false},
		{pattern: `round \d+`, wantErr: false},
		{pattern: "[unclosed", wantErr: true},
		{pattern: "*lead", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.pattern, func(t *testing.T) {
			err := ValidateRegex(tt.pattern)
			if diff := cmp.Diff(tt.wantErr, err != nil); diff != "" {
				t.Errorf("ValidateRegex() error mismatch (-want +got):\n%s\nerr: %v", diff, err)
			}
		})
	}
}
