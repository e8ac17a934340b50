/*
Package fragments stores named HTML fragments in SQLite and hands them out as
deferred markup values.

A fragment is either trusted, in which case its body is emitted verbatim, or
untrusted, in which case the body is escaped when it is interpolated. Load
starts the lookup on its own goroutine and returns a *markup.Future, so a page
can interpolate any number of fragments and let markup await them together.
*/
package fragments
