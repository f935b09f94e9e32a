package db

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

func collectorSettingsInstance() (*mongo.Collection, error) {
	client, err := GetMongoClient()
	if err != nil {
		fmt.Println("Error while getting mongo client for collector settings: " + err.Error())
		return nil, err
	}

	return client.Database(DatabaseName).Collection(CollectorSettingsCollectionName), nil
}

// ProbeOverride is one extra symbol a deployment wants sampled, with its
// argument offsets and lifecycle flags.
type ProbeOverride struct {
	Symbol    string `bson:"symbol"`
	SkbArg    int32  `bson:"skbArg"`
	ReasonArg int32  `bson:"reasonArg"`
	Free      bool   `bson:"free"`
	InvHead   bool   `bson:"invHead"`
}

// FetchProbeOverrides returns the deployment's extra probe rows, or nothing
// when mongo is unreachable or no settings document exists. The built-in
// hook list always applies; overrides only add to it.
func FetchProbeOverrides() []ProbeOverride {
	collection, err := collectorSettingsInstance()
	if err != nil {
		return nil
	}

	var result struct {
		ProbeOverrides []ProbeOverride `bson:"probeOverrides"`
	}
	err = collection.FindOne(context.Background(), bson.M{}).Decode(&result)
	if err != nil {
		fmt.Println(err)
		return nil
	}

	return result.ProbeOverrides
}
