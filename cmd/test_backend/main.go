package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
)

// Fake upstream backend for manual testing of the sync client.
// Serves the websocket event channel and the booking list endpoint.

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

var sampleBookings = []map[string]interface{}{
	{"booking_id": "bk-1001", "status": "confirmed", "guest": "A. Vance"},
	{"booking_id": "bk-1002", "status": "pending", "guest": "R. Okafor"},
	{"booking_id": "bk-1003", "status": "cancelled", "guest": "M. Silva"},
}

func sampleFrames() []map[string]interface{} {
	return []map[string]interface{}{
		{"type": "connected"},
		{
			"message_id": uuid.NewString(),
			"type":       "notification",
			"data": map[string]interface{}{
				"type":    "success",
				"message": "Booking bk-1001 was confirmed",
			},
		},
		{
			"message_id": uuid.NewString(),
			"type":       "notification",
			"data": map[string]interface{}{
				"data": map[string]interface{}{
					"type":         "warning",
					"message":      "Payment is overdue for booking bk-1002",
					"reference_id": "ref-77",
				},
			},
		},
		{
			"message_id": uuid.NewString(),
			"event_type": "booking_status.changed",
			"booking_id": "bk-1002",
			"status":     "confirmed",
		},
		{
			"message_id": uuid.NewString(),
			"type":       "event",
			"role":       "customer",
			"message":    "A customer updated their reservation",
		},
	}
}

func handleEventChannel(interval time.Duration) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		tenant := req.URL.Query().Get("company")
		log.Println("websocket client connected, tenant:", tenant)

		conn, err := upgrader.Upgrade(w, req, nil)
		if err != nil {
			log.Println("upgrade failure:", err)
			return
		}
		defer conn.Close()

		go func() {
			for {
				_, message, err := conn.ReadMessage()
				if err != nil {
					return
				}
				log.Println("received from client:", string(message))
			}
		}()

		for _, frame := range sampleFrames() {
			payload, _ := json.Marshal(frame)
			if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				log.Println("write failure:", err)
				return
			}
			time.Sleep(interval)
		}

		// keep the channel open so the client exercises reconnect on ctrl-c
		select {}
	}
}

func handleBookings() http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		tenant := mux.Vars(req)["tenant"]
		log.Println("booking list requested, tenant:", tenant)
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(sampleBookings)
	}
}

func main() {
	listenAddr := flag.String("listen-addr", ":8443", "hostname:port")
	frameInterval := flag.Int("frame-interval", 2, "seconds between emitted frames")
	flag.Parse()

	router := mux.NewRouter()
	router.HandleFunc("/ws/notifications", handleEventChannel(time.Duration(*frameInterval)*time.Second))
	router.HandleFunc("/api/companies/{tenant}/bookings", handleBookings()).Methods(http.MethodGet)

	fmt.Println("test backend listening on", *listenAddr)
	log.Fatal(http.ListenAndServe(*listenAddr, router))
}
