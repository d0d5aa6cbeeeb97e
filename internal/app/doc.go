// Package app turns a pipeline file into a process and runs it to completion.
package app
