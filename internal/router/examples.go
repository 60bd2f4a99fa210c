package router

import "github.com/spherical-ai/trendscope/internal/domain"

// Example is a sample question with the route it is expected to take.
type Example struct {
	Kind        domain.RouteKind `json:"kind"`
	Query       string           `json:"query"`
	Description string           `json:"description"`
}

var examples = []Example{
	{domain.RouteAnalytical, "Which category has the most trending videos?", "Statistics about video categories"},
	{domain.RouteAnalytical, "Top 10 channels by total views", "Aggregate data across channels"},
	{domain.RouteAnalytical, "Average likes for Gaming category", "Metrics for a specific category"},
	{domain.RouteSemantic, "Find videos about cooking tutorials", "Search by content"},
	{domain.RouteSemantic, "Videos similar to tech reviews", "Similar content by embedding"},
	{domain.RouteSemantic, "Content related to fitness and wellness", "Discover videos by topic"},
	{domain.RouteHybrid, "Most popular gaming videos about Minecraft", "Topic search combined with rankings"},
	{domain.RouteHybrid, "Top educational content about programming", "Category ranking plus content search"},
	{domain.RouteHybrid, "Find trending cooking videos with high engagement", "Topic search with engagement metrics"},
}

// Examples returns the sample questions shown by the CLI and the HTTP API.
func Examples() []Example {
	return append([]Example(nil), examples...)
}
