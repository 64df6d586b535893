package cmd

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/andresmejia3/ash/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfirm(t *testing.T) {
	tests := []struct {
		input string
		want  bool
	}{
		{"y\n", true},
		{"YES\n", true},
		{" yes \n", true},
		{"n\n", false},
		{"\n", false},
		{"", false},
	}

	for _, tt := range tests {
		var out bytes.Buffer
		got := confirm(bufio.NewReader(strings.NewReader(tt.input)), &out, "Drop?")
		assert.Equal(t, tt.want, got, "input %q", tt.input)
		assert.Equal(t, "Drop? [y/N]: ", out.String())
	}
}

func TestValidateThreshold(t *testing.T) {
	assert.NoError(t, validateThreshold(0))
	assert.NoError(t, validateThreshold(0.85))
	assert.NoError(t, validateThreshold(1))
	assert.Error(t, validateThreshold(-0.1))
	assert.Error(t, validateThreshold(1.01))
}

func TestPrintSummary(t *testing.T) {
	var out bytes.Buffer
	printSummary(&out, scanSummary{
		Images:    3,
		Failed:    1,
		Faces:     4,
		Enrolled:  1,
		Sightings: map[int]int{7: 1, 2: 3},
	})

	text := out.String()
	assert.Contains(t, text, "SCAN SUMMARY")
	assert.Contains(t, text, "Images Scanned:     3 (1 failed)")
	assert.Less(t, strings.Index(text, "Identity 2: 3"), strings.Index(text, "Identity 7: 1"))
}

type fakeAdminStore struct {
	err        error
	resets     int
	renamed    map[int]string
	identities []store.Identity
	lastFilter string
}

func (f *fakeAdminStore) Reset(context.Context) error {
	f.resets++
	return f.err
}

func (f *fakeAdminStore) RenameIdentity(_ context.Context, id int, name string) error {
	if f.err != nil {
		return f.err
	}
	if f.renamed == nil {
		f.renamed = map[int]string{}
	}
	f.renamed[id] = name
	return nil
}

func (f *fakeAdminStore) ListIdentities(_ context.Context, filter string) ([]store.Identity, error) {
	f.lastFilter = filter
	return f.identities, f.err
}

func TestRunReset(t *testing.T) {
	errBoom := errors.New("boom")

	tests := []struct {
		name       string
		input      string
		yes        bool
		storeErr   error
		wantResets int
		wantOut    string
		wantErr    error
	}{
		{name: "confirmed", input: "y\n", wantResets: 1, wantOut: "Reset Complete."},
		{name: "skip prompt", yes: true, wantResets: 1, wantOut: "Reset Complete."},
		{name: "declined", input: "n\n", wantResets: 0, wantOut: "Aborted."},
		{name: "store failure", yes: true, storeErr: errBoom, wantResets: 1, wantErr: errBoom},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db := &fakeAdminStore{err: tt.storeErr}
			var out bytes.Buffer

			err := runReset(context.Background(), db, strings.NewReader(tt.input), &out, tt.yes)
			assert.Equal(t, tt.wantResets, db.resets)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.NotContains(t, out.String(), "Reset Complete.")
				return
			}
			require.NoError(t, err)
			assert.Contains(t, out.String(), tt.wantOut)
		})
	}
}

func TestRunLabel(t *testing.T) {
	errBoom := errors.New("boom")

	tests := []struct {
		name     string
		storeErr error
		wantErr  error
	}{
		{name: "renamed"},
		{name: "missing identity", storeErr: store.ErrNotFound, wantErr: store.ErrNotFound},
		{name: "store failure", storeErr: errBoom, wantErr: errBoom},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db := &fakeAdminStore{err: tt.storeErr}
			var out bytes.Buffer

			err := runLabel(context.Background(), db, &out, 4, "Ada")
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Empty(t, out.String())
				return
			}
			require.NoError(t, err)
			assert.Equal(t, map[int]string{4: "Ada"}, db.renamed)
			assert.Equal(t, "✅ Identity 4 labeled as 'Ada'\n", out.String())
		})
	}
}

func TestRunList(t *testing.T) {
	var out bytes.Buffer
	db := &fakeAdminStore{}
	require.NoError(t, runList(context.Background(), db, &out, "ada"))
	assert.Equal(t, "ada", db.lastFilter)
	assert.Equal(t, "No identities found in database.\n", out.String())

	out.Reset()
	db.identities = []store.Identity{
		{ID: 1, Name: "Ada", Count: 3, CreatedAt: time.Date(2024, 1, 2, 3, 4, 0, 0, time.Local)},
		{ID: 2, Name: "Grace", Count: 0, CreatedAt: time.Date(2024, 5, 6, 7, 8, 0, 0, time.Local)},
	}
	require.NoError(t, runList(context.Background(), db, &out, ""))
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 4)
	assert.True(t, strings.HasPrefix(lines[0], "ID"))
	assert.Contains(t, lines[2], "Ada")
	assert.Contains(t, lines[2], "2024-01-02 03:04")
	assert.Contains(t, lines[3], "Grace")

	db.err = errors.New("connection refused")
	assert.ErrorContains(t, runList(context.Background(), db, &out, ""), "connection refused")
}
