// Package viewer holds the state behind the document viewer: the catalog of
// sample documents, page layout for a viewport, and open sessions.
//
// A Session replaces an ambient, globally reachable document context. It is
// created by Registry.Open, looked up by token and ends with Registry.Close;
// a closed or unknown token yields ErrNoSession.
package viewer
