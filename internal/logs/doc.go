// Package logs reads the earmark log file for the CLI "logs" command.
//
// Last returns the trailing lines with bounded memory and the offset to
// continue from. Follow then streams lines appended after that offset until
// the context ends. A missing file is treated as empty.
package logs
