/*
Copyright (C) 2022-2024 ApeCloud Co., Ltd

This file is part of KubeBlocks project

This program is free software: you can redistribute it and/or modify
it under the terms of the GNU Affero General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

This program is distributed in the hope that it will be useful
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU Affero General Public License for more details.

You should have received a copy of the GNU Affero General Public License
along with this program.  If not, see <http://www.gnu.org/licenses/>.
*/

package v1alpha1

import (
	"fmt"
)

// VerifyParams validates the request against the current universe snapshot.
// It never mutates either side.
func (p *ResizeNodeParams) VerifyParams(universe *Universe) error {
	if universe == nil {
		return fmt.Errorf("universe %s not found", p.UniverseUUID)
	}
	if p.UniverseUUID != "" && p.UniverseUUID != universe.UUID {
		return invalidValueError("universeUUID", p.UniverseUUID)
	}
	if universe.UpdateInProgress {
		return fmt.Errorf("universe %s is already being updated", universe.UUID)
	}
	if len(p.Clusters) == 0 {
		return notEmptyError("clusters")
	}
	seen := make(map[string]struct{}, len(p.Clusters))
	for _, c := range p.Clusters {
		if _, ok := seen[c.UUID]; ok {
			return fmt.Errorf(`cluster "%s" is specified more than once`, c.UUID)
		}
		seen[c.UUID] = struct{}{}
		current := universe.GetClusterByUUID(c.UUID)
		if current == nil {
			return fmt.Errorf(`cluster "%s" not found in universe %s`, c.UUID, universe.UUID)
		}
		if err := p.verifyClusterIntent(c.UserIntent, current.UserIntent); err != nil {
			return fmt.Errorf(`cluster "%s": %w`, c.UUID, err)
		}
	}
	return nil
}

func (p *ResizeNodeParams) verifyClusterIntent(desired, current UserIntent) error {
	if desired.InstanceType == "" {
		return notEmptyError("userIntent.instanceType")
	}
	// zero means the replication factor is left untouched
	if desired.ReplicationFactor != 0 && desired.ReplicationFactor != current.ReplicationFactor {
		return fmt.Errorf("replication factor can not be changed by a resize, current %d, requested %d",
			current.ReplicationFactor, desired.ReplicationFactor)
	}
	newDevice := desired.DeviceInfo
	if newDevice == nil {
		return nil
	}
	curDevice := current.DeviceInfo
	if curDevice == nil {
		return fmt.Errorf("cluster has no device info, disk can not be resized")
	}
	if newDevice.VolumeSize <= 0 {
		return invalidValueError("userIntent.deviceInfo.volumeSize", fmt.Sprint(newDevice.VolumeSize))
	}
	if newDevice.NumVolumes != 0 && newDevice.NumVolumes != curDevice.NumVolumes {
		return fmt.Errorf("number of volumes can not be changed, current %d, requested %d",
			curDevice.NumVolumes, newDevice.NumVolumes)
	}
	if newDevice.StorageClass != "" && newDevice.StorageClass != curDevice.StorageClass {
		return fmt.Errorf("storage class can not be changed, current %s, requested %s",
			curDevice.StorageClass, newDevice.StorageClass)
	}
	if newDevice.VolumeSize < curDevice.VolumeSize && !p.ForceResizeNode {
		return fmt.Errorf("disk size can not be decreased from %dGB to %dGB",
			curDevice.VolumeSize, newDevice.VolumeSize)
	}
	return nil
}

// NormalizeIntent fills the fields a request may leave empty from the current intent.
func NormalizeIntent(desired, current UserIntent) UserIntent {
	out := desired.DeepCopy()
	if out.ReplicationFactor == 0 {
		out.ReplicationFactor = current.ReplicationFactor
	}
	if out.DeviceInfo != nil && current.DeviceInfo != nil {
		if out.DeviceInfo.NumVolumes == 0 {
			out.DeviceInfo.NumVolumes = current.DeviceInfo.NumVolumes
		}
		if out.DeviceInfo.StorageClass == "" {
			out.DeviceInfo.StorageClass = current.DeviceInfo.StorageClass
		}
	}
	return out
}

func notEmptyError(target string) error {
	return fmt.Errorf(`"%s" can not be empty`, target)
}

func invalidValueError(target string, value string) error {
	return fmt.Errorf(`invalid value for "%s": %s`, target, value)
}
