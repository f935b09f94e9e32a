package db

import (
	"context"
	"fmt"
	"log"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/packetvisor/skb-lifecycle-tracking/utils"
)

func trackingMetricsInstance() (*mongo.Collection, error) {
	client, err := GetMongoClient()
	if err != nil {
		fmt.Println("Error while getting mongo client for tracking metrics: " + err.Error())
		return nil, err
	}

	return client.Database(DatabaseName).Collection(TrackingMetricsCollectionName), nil
}

// TrackingMetricsDbUpdates upserts one counter document per flush window.
func TrackingMetricsDbUpdates(collectorId string, counts map[string]uint64, liveRecords int) {
	collection, err := trackingMetricsInstance()
	if err != nil {
		return
	}

	window, _ := utils.EpochMinutes()
	filter := bson.M{"collectorId": collectorId, "windowEpoch": window}
	update := bson.M{
		"$set": bson.M{
			"liveRecords": liveRecords,
			"updatedAt":   time.Now().Unix(),
		},
	}
	inc := bson.M{}
	for name, count := range counts {
		inc["counts."+name] = int64(count)
	}
	if len(inc) > 0 {
		update["$inc"] = inc
	}

	opts := options.Update().SetUpsert(true)
	_, err = collection.UpdateOne(context.Background(), filter, update, opts)
	if err != nil {
		log.Printf("Error while updating tracking metrics: %v", err)
	}
}
