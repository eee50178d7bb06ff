// Package influxstats pushes post-run dedup statistics to InfluxDB for
// dashboarding. It is entirely optional: when no endpoint is configured the
// run proceeds without it.
package influxstats

import (
	"time"

	influxdb "github.com/influxdata/influxdb/client/v2"

	"github.com/nonatech-uk/finance/internal/config"
	"github.com/nonatech-uk/finance/pkg/dedup"
)

const database = "finance"

func Enabled() bool {
	return config.CurrentInfluxSecrets().InfluxEndpoint != ""
}

func CreateInfluxClient() (influxdb.Client, error) {
	return influxdb.NewHTTPClient(influxdb.HTTPConfig{
		Addr:     config.CurrentInfluxSecrets().InfluxEndpoint,
		Username: config.CurrentInfluxSecrets().InfluxUsername,
		Password: config.CurrentInfluxSecrets().InfluxPassword,
	})
}

// WriteRunStats records one point per rule plus a run summary point.
func WriteRunStats(client influxdb.Client, result *dedup.RunResult, stats *dedup.Stats) error {
	bp, err := influxdb.NewBatchPoints(influxdb.BatchPointsConfig{
		Database:  database,
		Precision: "s",
	})
	if err != nil {
		return err
	}

	now := time.Now()

	for rule, groups := range result.GroupsByRule {
		point, err := influxdb.NewPoint("dedup_rule_runs",
			map[string]string{"rule": rule, "scope": result.Scope.String()},
			map[string]interface{}{
				"groups":  groups,
				"members": result.MembersByRule[rule],
			},
			now,
		)
		if err != nil {
			return err
		}

		bp.AddPoint(point)
	}

	point, err := influxdb.NewPoint("dedup_runs",
		map[string]string{"scope": result.Scope.String()},
		map[string]interface{}{
			"transactions": result.Transactions,
			"groups":       result.GroupsCreated,
			"grouped":      result.TransactionsGrouped,
			"raw":          stats.RawTransactions,
			"active":       stats.ActiveTransactions,
		},
		now,
	)
	if err != nil {
		return err
	}

	bp.AddPoint(point)

	return client.Write(bp)
}
