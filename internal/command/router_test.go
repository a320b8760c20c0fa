package command

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseRejectsNonCommands(t *testing.T) {
	_, _, ok := Parse("hello there")
	require.False(t, ok)

	_, _, ok = Parse("/")
	require.False(t, ok)
}

func TestParseSplitsNameAndArgs(t *testing.T) {
	name, args, ok := Parse("/Session-Search foo bar --limit 5")
	require.True(t, ok)
	require.Equal(t, "session-search", name)
	require.Equal(t, "foo bar --limit 5", args)
}

func TestParseCommandWithNoArgs(t *testing.T) {
	name, args, ok := Parse("/help")
	require.True(t, ok)
	require.Equal(t, "help", name)
	require.Equal(t, "", args)
}

func TestDispatchRunsRegisteredHandler(t *testing.T) {
	r := NewRouter()
	r.Register(Command{
		Name: "ping",
		Handler: func(context.Context, *Context, string) (Result, error) {
			return Result{Text: "pong", Action: Continue}, nil
		},
	})

	res, err := r.Dispatch(context.Background(), &Context{}, "/ping")
	require.NoError(t, err)
	require.Equal(t, "pong", res.Text)
	require.Equal(t, Continue, res.Action)
}

func TestDispatchUsesAliases(t *testing.T) {
	r := NewRouter()
	r.Register(Command{
		Name:    "exit",
		Aliases: []string{"quit"},
		Handler: func(context.Context, *Context, string) (Result, error) {
			return Result{Action: Exit}, nil
		},
	})

	res, err := r.Dispatch(context.Background(), &Context{}, "/quit")
	require.NoError(t, err)
	require.Equal(t, Exit, res.Action)
}

func TestDispatchUnknownCommandSuggestsClosestMatch(t *testing.T) {
	r := NewRouter()
	r.Register(Command{Name: "help", Handler: func(context.Context, *Context, string) (Result, error) {
		return Result{}, nil
	}})

	res, err := r.Dispatch(context.Background(), &Context{}, "/hlep")
	require.NoError(t, err)
	require.Equal(t, Continue, res.Action)
	require.Contains(t, res.Text, "Unknown command /hlep")
	require.Contains(t, res.Text, "/help")
}

func TestDispatchUnknownCommandWithNoCloseMatchOmitsSuggestion(t *testing.T) {
	r := NewRouter()
	r.Register(Command{Name: "help", Handler: func(context.Context, *Context, string) (Result, error) {
		return Result{}, nil
	}})

	res, err := r.Dispatch(context.Background(), &Context{}, "/zzzzzzzzzzzzzzz")
	require.NoError(t, err)
	require.NotContains(t, res.Text, "Did you mean")
}

func TestDispatchAdminOnlyCommandRejectsNonAdmin(t *testing.T) {
	r := NewRouter()
	called := false
	r.Register(Command{
		Name:      "danger",
		AdminOnly: true,
		Handler: func(context.Context, *Context, string) (Result, error) {
			called = true
			return Result{}, nil
		},
	})

	res, err := r.Dispatch(context.Background(), &Context{IsAdmin: false}, "/danger")
	require.NoError(t, err)
	require.False(t, called)
	require.Contains(t, res.Text, "admin")
}

func TestDispatchAdminOnlyCommandAllowsAdmin(t *testing.T) {
	r := NewRouter()
	r.Register(Command{
		Name:      "danger",
		AdminOnly: true,
		Handler: func(context.Context, *Context, string) (Result, error) {
			return Result{Text: "done"}, nil
		},
	})

	res, err := r.Dispatch(context.Background(), &Context{IsAdmin: true}, "/danger")
	require.NoError(t, err)
	require.Equal(t, "done", res.Text)
}

func TestDispatchHandlerErrorBecomesResultText(t *testing.T) {
	r := NewRouter()
	r.Register(Command{
		Name: "fail",
		Handler: func(context.Context, *Context, string) (Result, error) {
			return Result{}, errBoom
		},
	})

	res, err := r.Dispatch(context.Background(), &Context{}, "/fail")
	require.NoError(t, err)
	require.Equal(t, errBoom.Error(), res.Text)
}

func TestLevenshtein(t *testing.T) {
	cases := []struct {
		a, b string
		want int
	}{
		{"", "", 0},
		{"abc", "abc", 0},
		{"", "abc", 3},
		{"kitten", "sitting", 3},
		{"help", "hlep", 2},
	}
	for _, c := range cases {
		require.Equal(t, c.want, levenshtein(c.a, c.b), "%s vs %s", c.a, c.b)
	}
}

func TestDefaultRouterHelpListsRegisteredCommands(t *testing.T) {
	r := NewDefaultRouter()
	res, err := r.Dispatch(context.Background(), &Context{}, "/help")
	require.NoError(t, err)
	require.Contains(t, res.Text, "/session-search")
	require.Contains(t, res.Text, "/skills-verify")
}

var errBoom = boomError("boom")

type boomError string

func (e boomError) Error() string { return string(e) }
