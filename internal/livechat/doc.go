// Package livechat reads chat replay pages and normalizes their items into chat messages.
package livechat
