package alert

import "fmt"

// Started announces a fresh subscription.
func Started(feed, address string, opts Options) Batch {
	title := "🚀 WebSocket Started 🚀"
	plain := fmt.Sprintf("%s\nSubscription Type: %s\nTracked User Address: %s", title, feed, address)
	body := fmt.Sprintf("*Subscription Type*: %s\n*Tracked User Address*: %s", esc(feed), code(address))
	return newBatch(KindLifecycle, bold(title)+"\n", []string{body}, plain, opts.limit())
}

// ConnectionLost reports a closed or failed transport. A nil err means the
// peer closed the connection cleanly.
func ConnectionLost(err error, opts Options) Batch {
	if err == nil {
		title := "❌ WebSocket Closed ❌"
		return newBatch(KindLifecycle, bold(title)+"\n", []string{esc("Attempting to reconnect...")},
			title+"\nAttempting to reconnect...", opts.limit())
	}
	title := "❌ WebSocket Error ❌"
	body := fmt.Sprintf("*Error*: %s\n%s", esc(err.Error()), esc("Attempting to reconnect..."))
	plain := fmt.Sprintf("%s\nError: %s\nAttempting to reconnect...", title, err)
	return newBatch(KindLifecycle, bold(title)+"\n", []string{body}, plain, opts.limit())
}

// ProcessingFailed reports a feed message the handler could not process.
func ProcessingFailed(feed string, err error, opts Options) Batch {
	title := fmt.Sprintf("❌ An error occurred while processing the %s message ❌", feed)
	msg := "<nil>"
	if err != nil {
		msg = err.Error()
	}
	body := fmt.Sprintf("*Error Message*: %s\n%s", esc(msg), esc("Please investigate the issue."))
	plain := fmt.Sprintf("%s\nError Message: %s\nPlease investigate the issue.", title, msg)
	return newBatch(KindLifecycle, bold(title)+"\n", []string{body}, plain, opts.limit())
}
