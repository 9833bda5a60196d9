// Command mjp-export exports every message of a Mein Justizpostfach account
// through an authenticated Chrome session.
//
// Usage:
//
//	mjp-export run                 export all outgoing, then all incoming messages
//	mjp-export list                print the work queue without exporting
//	mjp-export status [run-id]     show a journaled run (latest by default)
//	mjp-export config init         write a sample configuration file
//	mjp-export config validate     load and validate the configuration
//
// Start Chrome with --remote-debugging-port=9222, log in to the web
// application and set browser.remote_url (or MJP_BROWSER_REMOTE_URL) to
// attach to it. Without a remote URL, Chrome is launched with the configured
// profile directory.
package main
