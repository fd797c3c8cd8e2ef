// Package notify delivers end-of-run summaries to a webhook.
//
// Two payload formats are supported: "discord", a chat message with one embed
// field per stage, and "json", the Event itself. Delivery is retried with
// exponential backoff; the caller decides what a failed delivery means.
package notify
