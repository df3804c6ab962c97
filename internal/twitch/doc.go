// Package twitch ingests channel activity from Twitch EventSub over the websocket transport.
//
// Client owns one upstream connection at a time: it dials, waits for the session welcome,
// registers the Monitored subscriptions through a Subscriber, and then streams notifications
// through Decode into domain events. A keepalive watchdog tears the connection down when the
// upstream goes quiet, and session_reconnect frames move the client to the URL the server names.
package twitch
