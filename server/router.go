package server

import (
	"net/http"

	"arena/server/domain"
	"arena/server/handler"
	"arena/server/weapon"
)

func Route(pubsub domain.PubSub, roomManager domain.RoomManager, catalog weapon.Catalog, opts ...handler.AcceptOption) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/ws", handler.NewAcceptHandler(pubsub, roomManager, opts...))
	mux.Handle("GET /healthz", handler.NewHealthHandler())
	mux.Handle("GET /weapons", handler.NewWeaponsHandler(catalog))
	return mux
}
