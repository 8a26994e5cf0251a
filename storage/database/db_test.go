package database

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func Test_createUserQuery(t *testing.T) {
	tests := []struct {
		name  string
		user  string
		pwd   string
		wantQ string
	}{
		{name: "plain", user: "schoolsys", pwd: "secret", wantQ: `CREATE USER "schoolsys" CREATEDB ENCRYPTED PASSWORD 'secret'`},
		{name: "quotes", user: `school"sys`, pwd: "it's", wantQ: `CREATE USER "school""sys" CREATEDB ENCRYPTED PASSWORD 'it''s'`},
		{name: "backslash", user: "schoolsys", pwd: `a\b`, wantQ: `CREATE USER "schoolsys" CREATEDB ENCRYPTED PASSWORD  E'a\\b'`},
		{name: "injection", user: "x", pwd: "'; DROP TABLE course; --", wantQ: `CREATE USER "x" CREATEDB ENCRYPTED PASSWORD '''; DROP TABLE course; --'`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wantQ, createUserQuery(tt.user, tt.pwd))
		})
	}
}

func Test_createDBQuery(t *testing.T) {
	assert.Equal(t, `CREATE DATABASE "schoolsys"`, createDBQuery("schoolsys"))
	assert.Equal(t, `CREATE DATABASE "school""; DROP DATABASE x; --"`, createDBQuery(`school"; DROP DATABASE x; --`))
}
