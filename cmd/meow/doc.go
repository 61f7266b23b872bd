// Command meow pastes a file, or standard input, to a meowd server and
// prints the URL it can be retrieved from. With -get, it writes an existing
// paste to standard output instead.
//
//	$ meow notes.txt
//	https://paste.example.com/remove-cabin-fluid
//	$ meow -get remove-cabin-fluid > notes.txt
//
// The server URL comes from the -url flag or the MEOW_URL environment
// variable, which may also be set in a .env file.
package main // import "github.com/nicolagi/meow/cmd/meow"
