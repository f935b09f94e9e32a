package db

import (
	"context"
	"log"
	"os"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

var (
	clientInstance      *mongo.Client
	clientInstanceError error
	once                sync.Once
)

var MongoUrl = ""
var DatabaseName = "skb_tracking"
var TrackingMetricsCollectionName = "tracking_metrics"
var CollectorSettingsCollectionName = "collector_settings"

func GetMongoClient() (*mongo.Client, error) {
	once.Do(func() {
		MongoUrl = os.Getenv("TRACKING_MONGO_CONN")

		clientOptions := options.Client().ApplyURI(MongoUrl)

		client, err := mongo.Connect(context.Background(), clientOptions)
		if err != nil {
			clientInstanceError = err
		}
		clientInstance = client
	})

	return clientInstance, clientInstanceError
}

func InitMongoClient() {
	disableOnDb := os.Getenv("TRACKING_DISABLE_ON_DB")
	disableOnDbFlag := disableOnDb == "true"

	log.Printf("Disable flag : %t", disableOnDbFlag)

	client, err := GetMongoClient()
	mongoPingErr := client.Ping(context.Background(), readpref.Primary())
	if err != nil || mongoPingErr != nil {
		log.Printf("Failed connecting to mongo %s", err)
		if disableOnDbFlag {
			log.Println("Exiting....")
			time.Sleep(time.Second * 60)
			panic("Failed connecting to mongo") // this will get restarted by docker
		}
	} else {
		log.Printf("Connected to mongo")
	}
}

func CloseMongoClient() {
	client, _ := GetMongoClient()

	if err := client.Disconnect(context.Background()); err != nil {
		log.Printf("Unable to disconnect mongo client")
	}
}
