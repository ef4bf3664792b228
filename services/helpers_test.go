package services

import (
	"github.com/camden-git/eventfaces/permissions"
	"github.com/camden-git/eventfaces/workers"
)

func workersJob(id string, photoIDs []uint) workers.TagJob {
	return workers.TagJob{ID: id, Caller: permissions.UserCaller(ownerID), PhotoIDs: photoIDs}
}
