package routes

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault_Web(t *testing.T) {
	web := Default().Web

	assert.Equal(t, "/auth/login", web.Login)
	assert.Equal(t, "/dashboard", web.Landing)

	tests := []struct {
		path       string
		want       Class
		intercepts bool
	}{
		{path: "/", want: Public},
		{path: "/auth/login", want: AuthOnly, intercepts: true},
		{path: "/auth/register", want: AuthOnly, intercepts: true},
		{path: "/auth/logout", want: Public, intercepts: true},
		{path: "/dashboard", want: Protected, intercepts: true},
		{path: "/dashboard/", want: Protected, intercepts: true},
		{path: "/dashboard/orders", want: Protected, intercepts: true},
		{path: "/dashboard/meals/today", want: Protected, intercepts: true},
		{path: "/dashboardx", want: Public},
		{path: "/api/session", want: Public},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.want, web.Classify(tt.path))
			assert.Equal(t, tt.intercepts, web.Intercepts(tt.path))
		})
	}
}

func TestDefault_App(t *testing.T) {
	app := Default().App

	assert.Equal(t, "/(auth)/login", app.Login)
	assert.Equal(t, "/(tabs)", app.Landing)

	assert.Equal(t, Public, app.Classify("/"))
	assert.Equal(t, AuthOnly, app.Classify("/(auth)/login"))
	assert.Equal(t, AuthOnly, app.Classify("/(auth)/signup"))
	assert.Equal(t, Protected, app.Classify("/(tabs)"))
	assert.Equal(t, Protected, app.Classify("/(tabs)/settings"))
	assert.Equal(t, Protected, app.Classify("/my-orders"))
	assert.Equal(t, Protected, app.Classify("/reserve-meal"))
	assert.True(t, app.Intercepts("/anything"), "empty matcher intercepts all")
}

func TestClassify_ExactBeatsWildcard(t *testing.T) {
	table := Table{
		Routes: []Route{
			{Pattern: "/docs/*", Class: Protected},
			{Pattern: "/docs/public", Class: Public},
			{Pattern: "/docs/public/*", Class: AuthOnly},
		},
	}

	assert.Equal(t, Public, table.Classify("/docs/public"))
	assert.Equal(t, AuthOnly, table.Classify("/docs/public/x"))
	assert.Equal(t, Protected, table.Classify("/docs/private"))
	assert.Equal(t, Public, table.Classify("/docs"))
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		doc     string
		wantErr string
	}{
		{
			name:    "bad yaml",
			doc:     "web: [",
			wantErr: "failed to parse routes",
		},
		{
			name: "unknown class",
			doc: `
web: {login: /l, landing: /d, routes: [{pattern: /d, class: protected}, {pattern: /x, class: secret}]}
app: {login: /l, landing: /d, routes: [{pattern: /d, class: protected}]}`,
			wantErr: `unknown class "secret"`,
		},
		{
			name: "protected login",
			doc: `
web: {login: /l, landing: /d, routes: [{pattern: /d, class: protected}, {pattern: /l, class: protected}]}
app: {login: /l, landing: /d, routes: [{pattern: /d, class: protected}]}`,
			wantErr: "must not be protected",
		},
		{
			name: "public landing",
			doc: `
web: {login: /l, landing: /d, routes: [{pattern: /d, class: protected}]}
app: {login: /l, landing: /d}`,
			wantErr: "invalid app routes",
		},
		{
			name: "relative pattern",
			doc: `
web: {login: /l, landing: /d, routes: [{pattern: d, class: protected}]}
app: {login: /l, landing: /d, routes: [{pattern: /d, class: protected}]}`,
			wantErr: "must start with /",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load([]byte(tt.doc))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestClean(t *testing.T) {
	assert.Equal(t, "/", Clean(""))
	assert.Equal(t, "/dashboard", Clean("dashboard"))
	assert.Equal(t, "/dashboard", Clean("/dashboard/"))
	assert.Equal(t, "/auth/login", Clean("/dashboard/../auth/login"))
}
