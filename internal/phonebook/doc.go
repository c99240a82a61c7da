// Package phonebook persists name → phones records behind a small Store
// interface with file and sqlite drivers.
package phonebook
