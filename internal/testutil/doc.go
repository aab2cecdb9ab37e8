// Package testutil holds helpers shared by package tests: throwaway
// stores, loggers and deterministic session ids.
package testutil
