package pubsub

import (
	"fmt"
	"strings"
)

// TopicName expands a bare topic ID into its resource name. Full resource names pass through.
func TopicName(projectID, id string) string {
	return resourceName(projectID, "topics", id)
}

// SubscriptionName expands a bare subscription ID into its resource name.
func SubscriptionName(projectID, id string) string {
	return resourceName(projectID, "subscriptions", id)
}

func resourceName(projectID, collection, id string) string {
	id = strings.TrimSpace(id)
	if id == "" {
		return ""
	}
	if strings.HasPrefix(id, "projects/") {
		if strings.Contains(id, "/"+collection+"/") {
			return id
		}
		return ""
	}
	projectID = strings.TrimSpace(projectID)
	if projectID == "" {
		return ""
	}
	return fmt.Sprintf("projects/%s/%s/%s", projectID, collection, id)
}
